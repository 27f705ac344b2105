package handler

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"perfectpixel/internal/core/domain"
	"perfectpixel/internal/core/port"
)

//go:embed templates/*.html
var templates embed.FS

// maxJSONBytes bounds request bodies of the JSON endpoints.
const maxJSONBytes = 1 << 20

const cookieMaxAge = 365 * 24 * 60 * 60

type HTTP struct {
	processor port.ImageProcessor
	languages port.LanguageResolver
	index     *template.Template
	maxBytes  int64
}

func NewHTTP(processor port.ImageProcessor, languages port.LanguageResolver) (*HTTP, error) {
	index, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	maxBytes := viper.GetInt64("upload.max_bytes")
	if maxBytes <= 0 {
		maxBytes = domain.MaxUploadBytes
	}

	return &HTTP{
		processor: processor,
		languages: languages,
		index:     index,
		maxBytes:  maxBytes,
	}, nil
}

func (h *HTTP) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleIndex)
	r.Post("/upload", h.handleUpload)
	r.Post("/process", h.handleProcess)
	r.Get("/download/{filename}", h.handleDownload)
	r.Post("/cleanup", h.handleCleanup)
	r.Post("/set_language", h.handleSetLanguage)

	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	ImageID  string `json:"image_id"`
	Preview  string `json:"preview"`
	Filename string `json:"filename"`
}

type processResponse struct {
	Success          bool   `json:"success"`
	GridSize         [2]int `json:"grid_size"`
	ProcessedURL     string `json:"processed_url"`
	ProcessedPreview string `json:"processed_preview"`
	DebugImage       string `json:"debug_image,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type languageResponse struct {
	Success  bool   `json:"success"`
	Language string `json:"language"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// readJSON decodes a JSON object body. A missing, malformed or empty object yields ok=false.
func readJSON(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&raw); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("could not decode request body")
		return nil, false
	}
	return raw, len(raw) > 0
}

type indexData struct {
	Lang      string
	Languages []string
	T         map[string]string
}

func (h *HTTP) handleIndex(w http.ResponseWriter, r *http.Request) {
	var cookie string
	if c, err := r.Cookie(domain.LanguageCookie); err == nil {
		cookie = c.Value
	}

	lang := h.languages.Resolve(cookie, r.Header.Get("Accept-Language"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := h.index.Execute(w, indexData{
		Lang:      lang,
		Languages: h.languages.Codes(),
		T:         h.languages.Translations(lang),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to render index")
	}
}

func (h *HTTP) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		case r.MultipartForm != nil && len(r.MultipartForm.Value["file"]) > 0:
			writeError(w, http.StatusBadRequest, "No selected file")
		default:
			writeError(w, http.StatusBadRequest, "No file part")
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read upload")
		writeError(w, http.StatusBadRequest, "Invalid image file")
		return
	}

	up, err := h.processor.Upload(r.Context(), header.Filename, data)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "File type not allowed")
		return
	case errors.Is(err, domain.ErrTooManyPixels):
		writeError(w, http.StatusBadRequest, "Image too large")
		return
	case errors.Is(err, domain.ErrCorruptData), errors.Is(err, domain.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "Invalid image file")
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to store upload")
		writeError(w, http.StatusInternalServerError, "Failed to save image")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		ImageID:  up.Fingerprint.String(),
		Preview:  up.Preview,
		Filename: up.Filename,
	})
}

func (h *HTTP) handleProcess(w http.ResponseWriter, r *http.Request) {
	raw, ok := readJSON(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, "No JSON data")
		return
	}

	imageID := cast.ToString(raw["image_id"])
	if imageID == "" {
		writeError(w, http.StatusBadRequest, "Missing image_id")
		return
	}

	fp := domain.Fingerprint(imageID)

	params, err := domain.ParseParams(raw)
	if err != nil {
		// An unknown image is reported before bad parameters.
		if lookupErr := h.processor.Lookup(r.Context(), fp); lookupErr != nil {
			status, msg := processError(lookupErr)
			writeError(w, status, msg)
			return
		}
		detail := strings.TrimPrefix(err.Error(), domain.ErrInvalidParameters.Error()+": ")
		writeError(w, http.StatusBadRequest, "Invalid parameters: "+detail)
		return
	}

	outcome, err := h.processor.Process(r.Context(), fp, params)
	if err != nil {
		status, msg := processError(err)
		writeError(w, status, msg)
		return
	}

	resp := processResponse{
		Success:          true,
		GridSize:         [2]int{outcome.RefinedWidth, outcome.RefinedHeight},
		ProcessedURL:     "/download/" + outcome.Filename,
		ProcessedPreview: outcome.Preview,
	}
	if len(outcome.DiagnosticImage) > 0 {
		resp.DebugImage = domain.DataURI("image/png", outcome.DiagnosticImage)
	}

	writeJSON(w, http.StatusOK, resp)
}

func processError(err error) (int, string) {
	var failed *domain.ProcessingFailedError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Image not found"
	case errors.Is(err, domain.ErrCorruptData), errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusInternalServerError, "Failed to load image"
	case errors.As(err, &failed):
		return http.StatusInternalServerError, "Processing failed: " + failed.Reason
	default:
		log.Error().Err(err).Msg("failed to process image")
		return http.StatusInternalServerError, "Failed to process image"
	}
}

func (h *HTTP) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	data, err := h.processor.Artifact(r.Context(), name)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("filename", name).Msg("failed to read artifact")
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Str("filename", name).Msg("failed to send artifact")
	}
}

func (h *HTTP) handleCleanup(w http.ResponseWriter, r *http.Request) {
	raw, _ := readJSON(w, r)

	if imageID := cast.ToString(raw["image_id"]); imageID != "" {
		if err := h.processor.Cleanup(r.Context(), domain.Fingerprint(imageID)); err != nil {
			log.Warn().Err(err).Str("imageId", imageID).Msg("cleanup incomplete")
		}
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *HTTP) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	raw, ok := readJSON(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, "No JSON data")
		return
	}

	lang := cast.ToString(raw["language"])
	if !h.languages.Supported(lang) {
		writeError(w, http.StatusBadRequest, "Unsupported language")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     domain.LanguageCookie,
		Value:    lang,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, languageResponse{Success: true, Language: lang})
}

package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"perfectpixel/internal/core/domain"
)

// Bridge converts between encoded containers, domain.Image pixel grids and image.Image values.
//
// Pixel grids are canonical: an opaque image whose pixels all have equal red, green and blue samples is
// stored as Gray, any other opaque image as RGB, everything else as RGBA. Identical pixels therefore
// produce identical grids whatever container they arrived in.
type Bridge struct {
	maxPixels int64
}

func NewBridge() *Bridge {
	maxPixels := viper.GetInt64("upload.max_pixels")
	if maxPixels <= 0 {
		maxPixels = domain.MaxPixels
	}

	return &Bridge{maxPixels: maxPixels}
}

// NormalizeFormat maps a file extension or format name onto the name used by the image package.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "":
		return "", nil
	case "png":
		return "png", nil
	case "jpg", "jpeg":
		return "jpeg", nil
	case "gif":
		return "gif", nil
	case "bmp":
		return "bmp", nil
	case "tif", "tiff":
		return "tiff", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

func (b *Bridge) Decode(data []byte, declaredFormat string) (domain.Image, error) {
	format, err := NormalizeFormat(declaredFormat)
	if err != nil {
		return domain.Image{}, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrCorruptData, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > b.maxPixels {
		return domain.Image{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrTooManyPixels,
			cfg.Width, cfg.Height, b.maxPixels)
	}

	img, sniffed, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrCorruptData, err)
	}

	if format != "" && format != sniffed {
		log.Debug().Str("declared", format).Str("sniffed", sniffed).Msg("container does not match declared format")
	}

	decoded := b.FromImage(img)
	log.Debug().
		Str("format", sniffed).
		Int("width", decoded.Width).
		Int("height", decoded.Height).
		Stringer("depth", decoded.Depth).
		Msg("decoded image")

	return decoded, nil
}

func (b *Bridge) Encode(img domain.Image, format string) (domain.Encoded, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return domain.Encoded{}, err
	}
	if format == "" {
		format = domain.DefaultFormat
	}

	if err := validate(img); err != nil {
		return domain.Encoded{}, err
	}

	var buf bytes.Buffer
	src := b.ToImage(img)

	switch format {
	case "png":
		err = png.Encode(&buf, src)
	case "bmp":
		err = bmp.Encode(&buf, src)
	case "tiff":
		err = tiff.Encode(&buf, src, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return domain.Encoded{}, fmt.Errorf("%w: %s is not a lossless container", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return domain.Encoded{}, fmt.Errorf("error encoding %s: %w", format, err)
	}

	return domain.Encoded{Format: format, Data: buf.Bytes()}, nil
}

func (b *Bridge) Preview(img domain.Image, maxDimension int) (string, error) {
	if maxDimension <= 0 {
		return "", fmt.Errorf("invalid preview dimension %d", maxDimension)
	}
	if err := validate(img); err != nil {
		return "", err
	}

	thumb := resize.Thumbnail(uint(maxDimension), uint(maxDimension), b.ToImage(img), resize.NearestNeighbor)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return "", fmt.Errorf("error encoding preview: %w", err)
	}

	return domain.DataURI("image/png", buf.Bytes()), nil
}

// Fingerprint hashes the grid shape followed by the raw pixel samples.
func (b *Bridge) Fingerprint(img domain.Image) domain.Fingerprint {
	var header [12]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(img.Width))
	binary.BigEndian.PutUint32(header[4:8], uint32(img.Height))
	binary.BigEndian.PutUint32(header[8:12], uint32(img.Depth))

	h := sha256.New()
	h.Write(header[:])
	h.Write(img.Pix)

	return domain.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func (b *Bridge) ToImage(img domain.Image) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)

	switch img.Depth {
	case domain.Gray:
		out := image.NewGray(rect)
		copy(out.Pix, img.Pix)
		return out
	case domain.RGB:
		out := image.NewNRGBA(rect)
		for i, j := 0, 0; i+2 < len(img.Pix) && j+3 < len(out.Pix); i, j = i+3, j+4 {
			out.Pix[j] = img.Pix[i]
			out.Pix[j+1] = img.Pix[i+1]
			out.Pix[j+2] = img.Pix[i+2]
			out.Pix[j+3] = 0xff
		}
		return out
	default:
		out := image.NewNRGBA(rect)
		copy(out.Pix, img.Pix)
		return out
	}
}

func (b *Bridge) FromImage(img image.Image) domain.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if gray, ok := img.(*image.Gray); ok {
		out := domain.Image{Width: w, Height: h, Depth: domain.Gray, Pix: make([]byte, w*h)}
		for y := 0; y < h; y++ {
			start := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*w:(y+1)*w], gray.Pix[start:start+w])
		}
		return out
	}

	rgba := toNRGBA(img)
	opaque, grayscale := true, true
	for i := 0; i < len(rgba); i += 4 {
		if rgba[i+3] != 0xff {
			opaque = false
			break
		}
		if grayscale && (rgba[i] != rgba[i+1] || rgba[i] != rgba[i+2]) {
			grayscale = false
		}
	}

	switch {
	case !opaque:
		return domain.Image{Width: w, Height: h, Depth: domain.RGBA, Pix: rgba}
	case grayscale:
		pix := make([]byte, w*h)
		for i := range pix {
			pix[i] = rgba[i*4]
		}
		return domain.Image{Width: w, Height: h, Depth: domain.Gray, Pix: pix}
	default:
		pix := make([]byte, w*h*3)
		for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
			pix[i] = rgba[j]
			pix[i+1] = rgba[j+1]
			pix[i+2] = rgba[j+2]
		}
		return domain.Image{Width: w, Height: h, Depth: domain.RGB, Pix: pix}
	}
}

// toNRGBA returns the non-premultiplied samples of img, four bytes per pixel.
func toNRGBA(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, w*h*4)

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(pix[y*w*4:(y+1)*w*4], src.Pix[start:start+w*4])
		}
		return pix
	case *image.RGBA:
		if src.Opaque() {
			for y := 0; y < h; y++ {
				start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
				copy(pix[y*w*4:(y+1)*w*4], src.Pix[start:start+w*4])
			}
			return pix
		}
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
			i += 4
		}
	}
	return pix
}

func validate(img domain.Image) error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", domain.ErrCorruptData, img.Width, img.Height)
	}
	switch img.Depth {
	case domain.Gray, domain.RGB, domain.RGBA:
	default:
		return fmt.Errorf("%w: invalid depth %d", domain.ErrCorruptData, img.Depth)
	}
	if len(img.Pix) != img.Stride()*img.Height {
		return fmt.Errorf("%w: expected %d samples, got %d", domain.ErrCorruptData,
			img.Stride()*img.Height, len(img.Pix))
	}
	return nil
}

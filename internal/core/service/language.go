package service

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"perfectpixel/internal/core/domain"
)

//go:embed locales/*.yaml
var locales embed.FS

// Languages is the translation table, keyed by language code. It is read-only once constructed.
type Languages struct {
	tables map[string]map[string]string
}

func NewLanguages() (*Languages, error) {
	return LoadLanguages(locales, "locales")
}

// LoadLanguages reads every <code>.yaml file in dir. The default language must be present.
func LoadLanguages(fsys fs.FS, dir string) (*Languages, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	tables := make(map[string]map[string]string, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var table map[string]string
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		tables[strings.TrimSuffix(path.Base(file), ".yaml")] = table
	}

	if _, ok := tables[domain.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("missing translations for default language %q", domain.DefaultLanguage)
	}

	l := &Languages{tables: tables}
	log.Debug().Strs("languages", l.Codes()).Msg("loaded translations")

	return l, nil
}

// Codes lists the supported language codes in sorted order.
func (l *Languages) Codes() []string {
	codes := make([]string, 0, len(l.tables))
	for code := range l.tables {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (l *Languages) Supported(code string) bool {
	_, ok := l.tables[code]
	return ok
}

func (l *Languages) Translations(code string) map[string]string {
	if table, ok := l.tables[code]; ok {
		return table
	}
	return l.tables[domain.DefaultLanguage]
}

// Resolve prefers a supported cookie value, then the first Accept-Language entry in header order whose
// primary subtag is supported. Quality weights are ignored.
func (l *Languages) Resolve(cookie, acceptLanguage string) string {
	if l.Supported(cookie) {
		return cookie
	}

	for _, entry := range strings.Split(acceptLanguage, ",") {
		code, _, _ := strings.Cut(entry, ";")
		tag, err := language.Parse(strings.TrimSpace(code))
		if err != nil {
			continue
		}

		base, _ := tag.Base()
		if l.Supported(base.String()) {
			return base.String()
		}
	}

	return domain.DefaultLanguage
}

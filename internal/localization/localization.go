// Package localization provides the reply texts sent to users during a
// conversation. Translations ship embedded as JSON files named by language
// code (e.g. "en.json"); an override directory can replace or extend them.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"msgflow/backend/internal/config"
)

//go:embed locales/*.json
var embedded embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewDefault returns a Localizer holding the embedded translations.
func NewDefault() (*Localizer, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	l := &Localizer{translations: make(map[string]map[string]string)}
	if err := l.load(sub); err != nil {
		return nil, err
	}
	return l, nil
}

// NewLocalizer loads the embedded translations and then overlays every JSON
// file found in dir. An empty dir skips the overlay.
func NewLocalizer(dir string) (*Localizer, error) {
	l, err := NewDefault()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return l, nil
	}
	if err := l.load(os.DirFS(dir)); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Localizer) load(fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read localization directory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		lang := strings.TrimSuffix(file.Name(), ".json")

		data, err := fs.ReadFile(fsys, path.Clean(file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}
		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		if l.translations[lang] == nil {
			l.translations[lang] = make(map[string]string, len(translations))
		}
		for k, v := range translations {
			l.translations[lang][k] = v
		}
	}
	return nil
}

// GetString returns the localized string for a key, falling back to the
// default language and finally to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}
	if lang != config.DefaultLanguage {
		if defaults, ok := l.translations[config.DefaultLanguage]; ok {
			if value, ok := defaults[key]; ok {
				return value
			}
		}
	}
	return key
}

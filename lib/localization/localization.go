// Package localization renders user-facing messages in the client's language.
package localization

import (
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/inkwell-labs/scribble"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type LocalizationService struct {
	bundle *i18n.Bundle
}

var (
	globalService *LocalizationService
	once          sync.Once
)

func NewLocalizationService() *LocalizationService {
	once.Do(func() {
		bundle := i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			slog.Error("can't list embedded locales", "err", err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+entry.Name()); err != nil {
				slog.Error("can't load locale", "file", entry.Name(), "err", err)
			}
		}

		globalService = &LocalizationService{bundle: bundle}
	})

	return globalService
}

// Languages lists the tags a message file was loaded for.
func (ls *LocalizationService) Languages() []language.Tag {
	return ls.bundle.LanguageTags()
}

func (ls *LocalizationService) GetLocalizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(ls.bundle, lang)
}

// GetLocalizerFromRequest honours scribble.ForcedLanguage, then the
// Accept-Language header, then English.
func (ls *LocalizationService) GetLocalizerFromRequest(r *http.Request) *i18n.Localizer {
	if scribble.ForcedLanguage != "" {
		return i18n.NewLocalizer(ls.bundle, scribble.ForcedLanguage, "en")
	}
	return i18n.NewLocalizer(ls.bundle, r.Header.Get("Accept-Language"), "en")
}

// SimpleLocalizer wraps i18n.Localizer with a more convenient API
type SimpleLocalizer struct {
	Localizer *i18n.Localizer
}

// T provides a concise way to localize messages
func (sl *SimpleLocalizer) T(messageID string) string {
	return sl.TData(messageID, nil)
}

// TData localizes a message that takes template data. Unknown message ids
// come back as the id itself.
func (sl *SimpleLocalizer) TData(messageID string, data any) string {
	result, err := sl.Localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", messageID, "err", err)
		return messageID
	}
	return result
}

// GetLocalizer creates a localizer based on the request's Accept-Language header
func GetLocalizer(r *http.Request) *SimpleLocalizer {
	localizer := NewLocalizationService().GetLocalizerFromRequest(r)
	return &SimpleLocalizer{Localizer: localizer}
}

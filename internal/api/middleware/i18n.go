package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Schlüssel im gin-Kontext
const (
	languageKey  = "language"
	localizerKey = "localizer"
)

// Translator hält das Übersetzungsbündel und den Sprachabgleich
type Translator struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
	def     string
}

// NewTranslator lädt die eingebetteten Übersetzungsdateien. Die
// Standardsprache dient als Rückfall für unbekannte Sprachen und Schlüssel.
func NewTranslator(defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "de"
	}
	tag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("ungültige Standardsprache %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, path.Join("locales", f.Name())); err != nil {
			return nil, fmt.Errorf("fehler beim Laden von %s: %w", f.Name(), err)
		}
	}

	return &Translator{
		bundle:  bundle,
		matcher: language.NewMatcher(bundle.LanguageTags()),
		def:     tag.String(),
	}, nil
}

// Match wählt die beste unterstützte Sprache für die Kandidaten, z.B.
// einen Query-Parameter und den Accept-Language-Header
func (t *Translator) Match(candidates ...string) string {
	tag, _ := language.MatchStrings(t.matcher, candidates...)
	base, conf := tag.Base()
	if conf == language.No {
		return t.def
	}
	return base.String()
}

// Localizer erstellt einen Localizer für die Sprache
func (t *Translator) Localizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(t.bundle, lang, t.def)
}

// I18n erstellt eine Middleware für die Internationalisierung. Die Sprache
// kommt aus ?lang= oder dem Accept-Language-Header.
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := t.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(languageKey, lang)
		c.Set(localizerKey, t.Localizer(lang))
		c.Next()
	}
}

// Language gibt die für die Anfrage gewählte Sprache zurück
func Language(c *gin.Context) string {
	return c.GetString(languageKey)
}

// T übersetzt eine Nachricht für die Anfrage. count wählt die Pluralform;
// fehlt der Schlüssel, wird er selbst zurückgegeben.
func T(c *gin.Context, id string, data map[string]interface{}, count ...int) string {
	v, ok := c.Get(localizerKey)
	if !ok {
		return id
	}
	cfg := &i18n.LocalizeConfig{MessageID: id, TemplateData: data}
	if len(count) > 0 {
		cfg.PluralCount = count[0]
	}
	msg, err := v.(*i18n.Localizer).Localize(cfg)
	if err != nil {
		log.Debugf("Übersetzung für %s fehlt: %v", id, err)
		return id
	}
	return msg
}

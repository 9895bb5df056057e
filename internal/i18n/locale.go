package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

const (
	DefaultLocale = "en"
	// LocaleCookie and LocaleParam let a client pin a locale that overrides
	// Accept-Language.
	LocaleCookie = "lng"
	LocaleParam  = "lng"
)

var (
	supported = []language.Tag{language.English, language.German}
	matcher   = language.NewMatcher(supported)
)

// SupportedLocales lists the locale codes with translations, default first.
func SupportedLocales() []string {
	out := make([]string, 0, len(supported))
	for _, tag := range supported {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// LocaleFromRequest resolves the locale from the query parameter, the locale
// cookie and the Accept-Language header, in that order.
func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	if q := r.URL.Query().Get(LocaleParam); q != "" {
		if loc, ok := exact(q); ok {
			return loc
		}
	}
	if c, err := r.Cookie(LocaleCookie); err == nil && c.Value != "" {
		if loc, ok := exact(c.Value); ok {
			return loc
		}
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale maps an Accept-Language value onto a supported locale.
func NormalizeLocale(header string) string {
	if strings.TrimSpace(header) == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	base, _ := supported[idx].Base()
	return base.String()
}

func exact(raw string) (string, bool) {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	for _, s := range supported {
		if b, _ := s.Base(); b == base {
			return b.String(), true
		}
	}
	return "", false
}

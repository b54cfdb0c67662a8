package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// supportedLocales are the languages the site ships translations for.
var supportedLocales = []language.Tag{
	language.English, // default
	language.Spanish,
	language.French,
	language.German,
	language.Indonesian,
	language.Turkish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// countryLocales maps countries with a clear primary site language.
var countryLocales = map[string]string{
	"ES": "es", "MX": "es", "AR": "es", "CO": "es",
	"FR": "fr",
	"DE": "de", "AT": "de",
	"ID": "id",
	"TR": "tr",
}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Locale stores the detected display locale and country in the request
// context. Detection order: explicit X-Locale header, Accept-Language
// via the language matcher, then GeoIP country.
func Locale(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := resolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback, country string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return matchLocale(v)
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, _ := localeMatcher.Match(tags...)
			base, _ := supportedLocales[idx].Base()
			return base.String()
		}
	}
	if v, ok := countryLocales[strings.ToUpper(country)]; ok {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

func matchLocale(v string) string {
	tag, err := language.Parse(v)
	if err != nil {
		return "en"
	}
	_, idx, _ := localeMatcher.Match(tag)
	base, _ := supportedLocales[idx].Base()
	return base.String()
}

func resolveCountry(r *http.Request, lookup CountryLookup) string {
	// Proxy-provided hints win over a GeoIP lookup.
	for _, key := range []string{"CF-IPCountry", "X-Country-Code"} {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func runLocale(t *testing.T, lookup CountryLookup, decorate func(*http.Request)) (locale, country string) {
	t.Helper()
	handler := Locale("en", lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if decorate != nil {
		decorate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return locale, country
}

func TestLocaleExplicitHeaderWins(t *testing.T) {
	locale, _ := runLocale(t, nil, func(r *http.Request) {
		r.Header.Set("X-Locale", "de-AT")
		r.Header.Set("Accept-Language", "fr")
	})
	if locale != "de" {
		t.Fatalf("locale = %q, want de", locale)
	}
}

func TestLocaleAcceptLanguageMatched(t *testing.T) {
	locale, _ := runLocale(t, nil, func(r *http.Request) {
		r.Header.Set("Accept-Language", "tr-TR,tr;q=0.9,en;q=0.5")
	})
	if locale != "tr" {
		t.Fatalf("locale = %q, want tr", locale)
	}
}

func TestLocaleUnsupportedLanguageFallsBack(t *testing.T) {
	locale, _ := runLocale(t, nil, func(r *http.Request) {
		r.Header.Set("Accept-Language", "xx-klingon")
	})
	if locale != "en" {
		t.Fatalf("locale = %q, want en", locale)
	}
}

func TestLocaleGeoIPCountryFallback(t *testing.T) {
	lookup := func(ip string) (string, error) { return "ID", nil }
	locale, country := runLocale(t, lookup, func(r *http.Request) {
		r.RemoteAddr = "203.0.113.7:1234"
	})
	if locale != "id" {
		t.Fatalf("locale = %q, want id", locale)
	}
	if country != "ID" {
		t.Fatalf("country = %q, want ID", country)
	}
}

func TestLocaleProxyCountryHintBeatsLookup(t *testing.T) {
	lookup := func(ip string) (string, error) { return "DE", nil }
	_, country := runLocale(t, lookup, func(r *http.Request) {
		r.Header.Set("CF-IPCountry", "fr")
	})
	if country != "FR" {
		t.Fatalf("country = %q, want FR", country)
	}
}

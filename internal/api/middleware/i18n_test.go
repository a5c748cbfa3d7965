package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestTranslatorMatch(t *testing.T) {
	tr, err := NewTranslator("de")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		query, accept string
		want          string
	}{
		{"", "", "de"},
		{"en", "", "en"},
		{"", "en-GB,en;q=0.8", "en"},
		{"", "de-CH,de;q=0.9,en;q=0.5", "de"},
		{"fr", "", "de"},
		{"en", "de", "en"},
	}
	for _, tt := range tests {
		if got := tr.Match(tt.query, tt.accept); got != tt.want {
			t.Errorf("Match(%q, %q) = %q, want %q", tt.query, tt.accept, got, tt.want)
		}
	}
}

func TestT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr, err := NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	router := gin.New()
	router.Use(I18n(tr))
	router.GET("/", func(c *gin.Context) {
		got = append(got,
			T(c, "status.summary", map[string]interface{}{"Profiles": 1, "Streams": 2}, 1),
			T(c, "profiles.reloaded", map[string]interface{}{"Count": 3}),
			T(c, "no.such.key", nil),
			Language(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/?lang=de", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"1 Profil geladen, 2 Stream(s) aktiv", "Profile neu geladen: 3", "no.such.key", "de"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if s := T(&gin.Context{}, "profiles.reloaded", nil); s != "profiles.reloaded" {
		t.Errorf("T without middleware = %q", s)
	}
}

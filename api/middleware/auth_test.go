package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("root", RoleAdmin, "k1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ValidateToken(token, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "root" || claims.Role != RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ValidateToken(token, "k2"); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("root", RoleAdmin, "k", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "k"); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestJWTAuthLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := NewJWTConfig("k", time.Hour)
	token, _ := GenerateToken("ops", RoleViewer, "k", time.Hour)

	engine := gin.New()
	engine.GET("/r", JWTAuth(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername))
	})
	engine.GET("/w", JWTAuth(cfg), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		want   int
	}{
		{"header", "/r", "Bearer " + token, "", http.StatusOK},
		{"lowercase scheme", "/r", "bearer " + token, "", http.StatusOK},
		{"query", "/r?token=" + token, "", "", http.StatusOK},
		{"cookie", "/r", "", token, http.StatusOK},
		{"missing", "/r", "", "", http.StatusUnauthorized},
		{"wrong scheme", "/r", "Basic " + token, "", http.StatusUnauthorized},
		{"role denied", "/w", "Bearer " + token, "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "jwt", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "ops" {
				t.Fatalf("username = %q", w.Body.String())
			}
		})
	}
}

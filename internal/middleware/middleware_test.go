package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const secret = "middleware-test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), RequestID())
	api := r.Group("/api", JWTAuth(secret, "nimo-mes"))
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "roles": c.MustGet("roles")})
	})
	api.GET("/gm", RequireAnyRole("gm"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := newRouter()
	exp := time.Now().Add(time.Hour).Unix()

	if w := get(r, "/api/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	good := sign(t, jwt.MapClaims{"uid": "u-1", "roles": []string{"planner"}, "iss": "nimo-mes", "exp": exp})
	w := get(r, "/api/me", good)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	// query param 回退
	if w := get(r, "/api/me?token="+good, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", w.Code)
	}

	foreign := sign(t, jwt.MapClaims{"uid": "u-1", "iss": "someone-else", "exp": exp})
	if w := get(r, "/api/me", foreign); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong issuer, got %d", w.Code)
	}

	expired := sign(t, jwt.MapClaims{"uid": "u-1", "iss": "nimo-mes", "exp": time.Now().Add(-time.Minute).Unix()})
	if w := get(r, "/api/me", expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}

	bySubject := sign(t, jwt.MapClaims{"sub": "u-2", "iss": "nimo-mes", "exp": exp})
	if w := get(r, "/api/me", bySubject); w.Code != http.StatusOK {
		t.Fatalf("expected sub claim to identify the user, got %d", w.Code)
	}
}

func TestRequireAnyRole(t *testing.T) {
	r := newRouter()
	exp := time.Now().Add(time.Hour).Unix()

	planner := sign(t, jwt.MapClaims{"uid": "u-1", "roles": []string{"planner"}, "iss": "nimo-mes", "exp": exp})
	if w := get(r, "/api/gm", planner); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for planner, got %d", w.Code)
	}
	gm := sign(t, jwt.MapClaims{"uid": "u-2", "roles": []string{"gm"}, "iss": "nimo-mes", "exp": exp})
	if w := get(r, "/api/gm", gm); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for gm, got %d", w.Code)
	}
	manager := sign(t, jwt.MapClaims{"uid": "u-3", "roles": []string{"manager"}, "iss": "nimo-mes", "exp": exp})
	if w := get(r, "/api/gm", manager); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	r := newRouter()
	if w := get(r, "/panic", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"lingotutor/logger"
	"lingotutor/services"
)

type stubValidator struct {
	valid string
	sess  *services.Session
}

func (s stubValidator) ValidateToken(ctx context.Context, token string) (*services.Session, error) {
	if token != s.valid {
		return nil, errors.New("bad token")
	}
	return s.sess, nil
}

func newAuthRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(logger.Nop(), v).RequireAuth())
	r.GET("/me", func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	v := stubValidator{
		valid: "good",
		sess:  &services.Session{UserID: userID, TokenID: "t", ExpiresAt: time.Now().Add(time.Hour), State: services.SignedIn},
	}
	r := newAuthRouter(v)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bad bearer", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized},
		{"bearer", "Bearer good", "", http.StatusOK},
		{"lowercase bearer", "bearer good", "", http.StatusOK},
		{"query token", "", "good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/me"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
			}
		})
	}
}

func TestRequireAuthRejectsSignedOutSession(t *testing.T) {
	v := stubValidator{valid: "good", sess: &services.Session{UserID: uuid.New(), State: services.SignedOut}}
	r := newAuthRouter(v)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

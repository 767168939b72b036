package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taskapi/internal/errors"
	"taskapi/internal/logging"
)

func newContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		stored string
		want   string
	}{
		{"from context", "", "ctx-token", "ctx-token"},
		{"from header", "Bearer abc.def", "", "abc.def"},
		{"case insensitive scheme", "bearer abc", "", "abc"},
		{"wrong scheme", "Basic abc", "", ""},
		{"missing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			c, _ := newContext(req)
			if tt.stored != "" {
				c.Set(TokenContextKey, tt.stored)
			}
			assert.Equal(t, tt.want, bearerToken(c))
		})
	}
}

func TestErrorResponse(t *testing.T) {
	err := errorResponse(apperrors.ErrForbidden)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.Code)
	assert.Equal(t, apperrors.ErrorResponse{Error: "access denied", Code: "FORBIDDEN"}, he.Message)
	assert.ErrorIs(t, he.Internal, apperrors.ErrForbidden)

	err = errorResponse(errors.New("disk on fire"))
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.NotContains(t, he.Message.(apperrors.ErrorResponse).Error, "disk")
}

type stubChecker struct{ err error }

func (s stubChecker) Check(context.Context) error { return s.err }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		cache    Pinger
		wantCode int
		want     HealthResponse
	}{
		{
			name:     "all healthy",
			cache:    stubPinger{},
			wantCode: http.StatusOK,
			want:     HealthResponse{Status: "healthy", Database: "healthy", Cache: "healthy", APIVersion: APIVersion},
		},
		{
			name:     "cache down is informational",
			cache:    stubPinger{err: errors.New("connection refused")},
			wantCode: http.StatusOK,
			want:     HealthResponse{Status: "healthy", Database: "healthy", Cache: "unhealthy", APIVersion: APIVersion},
		},
		{
			name:     "database down",
			dbErr:    errors.New("connection refused"),
			wantCode: http.StatusServiceUnavailable,
			want:     HealthResponse{Status: "unhealthy", Database: "unhealthy", Cache: "disabled", APIVersion: APIVersion},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubChecker{err: tt.dbErr}, tt.cache, logging.Discard())
			c, rec := newContext(httptest.NewRequest(http.MethodGet, "/health", nil))

			require.NoError(t, h.Health(c))
			assert.Equal(t, tt.wantCode, rec.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

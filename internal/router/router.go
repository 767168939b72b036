package router

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	apperrors "taskapi/internal/errors"
	"taskapi/internal/handler"
)

// TokenResolver validates an access token and returns its subject.
type TokenResolver interface {
	Resolve(token string) (uuid.UUID, error)
}

// Deps carries everything Register wires together.
type Deps struct {
	Auth   *handler.AuthHandler
	Tasks  *handler.TaskHandler
	Users  *handler.UserHandler
	Health *handler.HealthHandler

	Tokens         TokenResolver
	RateLimitStore middleware.RateLimiterStore
	Logger         *slog.Logger
}

// Register wires routes and middleware.
func Register(e *echo.Echo, d Deps) {
	e.Use(middleware.RequestID())
	e.Use(requestLogger(d.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = NewValidator()

	e.GET("/health", d.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api/v1")
	if d.RateLimitStore != nil {
		api.Use(rateLimiter(d.RateLimitStore))
	}

	// Public routes
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login)

	// Secured routes (require a valid access token)
	secured := api.Group("", bearerGuard(d.Tokens, d.Logger))
	secured.GET("/me", d.Users.Me)

	secured.GET("/tasks", d.Tasks.ListTasks)
	secured.POST("/tasks", d.Tasks.CreateTask)
	secured.GET("/tasks/:id", d.Tasks.GetTask)
	secured.PUT("/tasks/:id", d.Tasks.UpdateTask)
	secured.PATCH("/tasks/:id", d.Tasks.UpdateTask)
	secured.DELETE("/tasks/:id", d.Tasks.DeleteTask)

	// Admin routes; the role is checked by the services.
	admin := secured.Group("/admin")
	admin.GET("/tasks", d.Tasks.ListAllTasks)
	admin.GET("/users", d.Users.ListUsers)
	admin.DELETE("/users/:id", d.Users.DeleteUser)
}

// bearerGuard rejects requests without a valid, unexpired token before any
// handler runs. The raw token is left in the context for the services.
func bearerGuard(tokens TokenResolver, logger *slog.Logger) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  handler.TokenContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			if _, err := tokens.Resolve(auth); err != nil {
				return nil, err
			}
			return auth, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger.DebugContext(c.Request().Context(), "bearer guard rejected request",
				"path", c.Path(), "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: "invalid or expired token",
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

func rateLimiter(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
		},
	})
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

package rest

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/database"
	"github.com/xompass/storefront-rest/helpers"
)

type LogLevel uint8

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LogLevelDebug: zerolog.DebugLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelError: zerolog.ErrorLevel,
}

// ParseLogLevel maps "debug", "info", "warn" and "error" to a LogLevel,
// defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

type AuditLogConfig struct {
	Enabled bool
	Handler func(ctx *EndpointContext, response any, affectedModelId any) error
}

type RestAppOptions struct {
	Name              string
	Port              uint16
	Environment       string
	Datasource        *database.Datasource
	Logger            zerolog.Logger
	LogLevel          LogLevel
	Guard             AccessGuard
	Redirector        *auth.Redirector
	RedisClient       *redis.Client // used by the rate limiter
	EnableRateLimiter bool
	AuditLogConfig    *AuditLogConfig
}

type RestApp struct {
	EchoApp           *echo.Echo
	Datasource        *database.Datasource
	redisClient       *redis.Client
	options           RestAppOptions
	ValidatorInstance *validator.Validate
	environment       string
	logger            zerolog.Logger
	guard             AccessGuard
	redirector        *auth.Redirector
	auditLogConfig    AuditLogConfig
}

func (receiver *RestApp) GetEnvironment() string {
	if receiver.environment == "" {
		env := receiver.options.Environment
		if env == "" {
			env = helpers.GetEnv("APP_ENV", "development")
		}
		receiver.environment = strings.ToLower(env)
	}

	return receiver.environment
}

func (receiver *RestApp) Logger() zerolog.Logger {
	return receiver.logger
}

func (receiver *RestApp) Debugf(format string, args ...any) {
	receiver.log(LogLevelDebug, format, args...)
}

func (receiver *RestApp) Infof(format string, args ...any) {
	receiver.log(LogLevelInfo, format, args...)
}

func (receiver *RestApp) Warnf(format string, args ...any) {
	receiver.log(LogLevelWarn, format, args...)
}

func (receiver *RestApp) Errorf(format string, args ...any) {
	receiver.log(LogLevelError, format, args...)
}

func (receiver *RestApp) log(level LogLevel, format string, args ...any) {
	if receiver == nil || receiver.options.LogLevel > level {
		return
	}

	zlevel, exists := zerologLevels[level]
	if !exists {
		zlevel = zerolog.NoLevel
	}

	receiver.logger.WithLevel(zlevel).Msgf(format, args...)
}

func NewRestApp(appOptions RestAppOptions) *RestApp {
	validate := validator.New()

	// Set the validation tag name to "json" to match the JSON struct tags
	// When an error occurs, the field name will be derived from the JSON tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	app := &RestApp{
		Datasource:        appOptions.Datasource,
		options:           appOptions,
		ValidatorInstance: validate,
		logger:            appOptions.Logger.With().Str("app", appOptions.Name).Logger(),
		guard:             appOptions.Guard,
		redirector:        appOptions.Redirector,
	}

	app.EchoApp = NewEchoApp(app.GetEnvironment() != "production")

	if appOptions.EnableRateLimiter {
		if appOptions.RedisClient == nil {
			app.Warnf("Rate limiter enabled without a Redis client, limits will not be enforced")
		}
		app.redisClient = appOptions.RedisClient
	}

	if appOptions.AuditLogConfig != nil {
		app.auditLogConfig = *appOptions.AuditLogConfig
	}

	return app
}

func (receiver *RestApp) Destroy() error {
	if receiver == nil {
		return nil
	}
	if receiver.Datasource != nil {
		receiver.Datasource.Destroy()
	}

	if receiver.redisClient != nil {
		return receiver.redisClient.Close()
	}

	return nil
}

// ServeHTTP lets the app be driven by httptest without a listener.
func (receiver *RestApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	receiver.EchoApp.ServeHTTP(w, r)
}

func (receiver *RestApp) Start() error {
	receiver.Infof("Starting %s on port %d", receiver.options.Name, receiver.options.Port)
	return receiver.EchoApp.Start(fmt.Sprint(":", receiver.options.Port))
}

func (receiver *RestApp) Shutdown(ctx context.Context) error {
	return receiver.EchoApp.Shutdown(ctx)
}

func (receiver *RestApp) Group(path string, m ...echo.MiddlewareFunc) *echo.Group {
	g := receiver.EchoApp.Group(path)
	for _, handler := range m {
		g.Use(handler)
	}
	return g
}

func (receiver *RestApp) RegisterEndpoint(ep *Endpoint, r *echo.Group) error {
	if ep == nil {
		return nil
	}
	if ep.Handler == nil {
		return fmt.Errorf("endpoint %s has no handler", ep.Name)
	}
	if !ep.Public && ep.OptionalAuth {
		return fmt.Errorf("endpoint %s: OptionalAuth requires Public", ep.Name)
	}

	var executor func(path string, handler echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	switch ep.Method {
	case MethodGET:
		executor = r.GET
	case MethodHEAD:
		executor = r.HEAD
	case MethodPOST:
		executor = r.POST
	case MethodPUT:
		executor = r.PUT
	case MethodPATCH:
		executor = r.PATCH
	case MethodDELETE:
		executor = r.DELETE
	default:
		return fmt.Errorf("unsupported HTTP method %s for endpoint %s", ep.Method, ep.Name)
	}

	ep.app = receiver
	executor(ep.Path, ep.run)
	receiver.Debugf("Registered %s %s (%s)", ep.Method, ep.Path, ep.Name)
	return nil
}

func (receiver *RestApp) RegisterEndpoints(endpoints []*Endpoint, r *echo.Group) error {
	for _, ep := range endpoints {
		if err := receiver.RegisterEndpoint(ep, r); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	rest "github.com/xompass/storefront-rest"
	"github.com/xompass/storefront-rest/accounts"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/cache"
	"github.com/xompass/storefront-rest/config"
	"github.com/xompass/storefront-rest/database"
	"github.com/xompass/storefront-rest/internal/storefront"
	"github.com/xompass/storefront-rest/otp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("storefront api stopped")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := database.NewMongoConnectorFromURI(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	ds := &database.Datasource{}
	if err := ds.AddConnector(connector); err != nil {
		return err
	}
	if err := ds.Ping(); err != nil {
		return err
	}

	userRepo, err := database.NewMongoRepository[accounts.User](ds, database.RepositoryOptions{Created: true, Modified: true})
	if err != nil {
		return err
	}
	if err := ds.EnsureIndexes(); err != nil {
		return err
	}
	users := accounts.NewStore(userRepo, logger.With().Str("component", "accounts").Logger())

	redisClient, err := cache.NewClient(cache.Options{
		URL:      cfg.RedisURL,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	if err := cache.Ping(ctx, redisClient); err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(auth.TokenServiceOptions{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer})
	if err != nil {
		return err
	}
	revocations := cache.NewRedisRevocationList(redisClient)
	resolver := auth.NewSessionResolver(tokens, users,
		auth.WithRevocationList(revocations),
		auth.WithResolverLogger(logger.With().Str("component", "session").Logger()),
	)

	codes := otp.NewService(cache.NewRedisCodeStore(redisClient), otp.LogSender{Logger: logger}, otp.Options{
		TTL:         cfg.OTPTTL,
		Length:      cfg.OTPLength,
		MaxAttempts: cfg.OTPMaxAttempts,
		BcryptCost:  cfg.BcryptCost,
		Logger:      logger.With().Str("component", "otp").Logger(),
	})

	api := storefront.NewAPI(users, codes, tokens, revocations, storefront.Options{
		TokenTTL:                cfg.TokenTTL,
		TempAdminTokenTTL:       cfg.TempAdminTokenTTL,
		OTPRequestsPerHour:      cfg.OTPRequestsPerHour,
		OTPVerificationsPerHour: cfg.OTPVerifiesPerHour,
	})

	app := rest.NewRestApp(rest.RestAppOptions{
		Name:              cfg.AppName,
		Port:              uint16(cfg.HTTPPort),
		Environment:       cfg.Environment,
		Datasource:        ds,
		Logger:            logger,
		LogLevel:          rest.ParseLogLevel(cfg.LogLevel),
		Guard:             auth.NewGuard(resolver),
		Redirector:        auth.NewRedirector(auth.DefaultRedirectRules...),
		RedisClient:       redisClient,
		EnableRateLimiter: cfg.EnableRateLimiter,
		AuditLogConfig: &rest.AuditLogConfig{
			Enabled: true,
			Handler: auditLogger(logger),
		},
	})
	defer func() {
		if err := app.Destroy(); err != nil {
			logger.Error().Err(err).Msg("cleanup failed")
		}
	}()

	if err := app.RegisterEndpoints(api.Endpoints(), app.Group("/api")); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

func auditLogger(logger zerolog.Logger) func(*rest.EndpointContext, any, any) error {
	audit := logger.With().Str("component", "audit").Logger()
	return func(ctx *rest.EndpointContext, _ any, affectedModelID any) error {
		event := audit.Info().
			Str("endpoint", ctx.Endpoint.Name).
			Str("action", string(ctx.Endpoint.ActionType)).
			Str("model", ctx.Endpoint.Model).
			Interface("affected", affectedModelID).
			Str("ip", ctx.IpAddress)
		if ctx.Principal != nil {
			event = event.Str("principal", ctx.Principal.SubjectID).Str("role", string(ctx.Principal.Role))
		}
		event.Msg("audit")
		return nil
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/app"
	"lifeblocks/api/internal/auth"
	"lifeblocks/api/internal/authpw"
	"lifeblocks/api/internal/billing"
	"lifeblocks/api/internal/config"
	"lifeblocks/api/internal/email"
	"lifeblocks/api/internal/export"
	"lifeblocks/api/internal/logging"
	"lifeblocks/api/internal/media"
	"lifeblocks/api/internal/metrics"
	"lifeblocks/api/internal/plans"
	"lifeblocks/api/internal/search"
	"lifeblocks/api/internal/session"
	"lifeblocks/api/internal/store"
	"lifeblocks/api/internal/util"
)

// backingStore is what the service and the auth layer need from storage;
// both *store.PostgresStore and *store.Cache provide it.
type backingStore interface {
	authpw.UserStore
	media.Accounts
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.WithError(err).Warn("could not read .env")
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.Debug)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	for _, version := range applied {
		logger.WithField("version", version).Info("applied migration")
	}

	pg := store.NewPostgresStore(db)
	m := metrics.New()
	deps := app.Deps{Metrics: m, Logger: logger, Export: export.NewService()}

	var redisStore *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info("using redis for the board cache and token denylist")
	}

	var dataStore backingStore = pg
	var cache *store.Cache
	if redisStore != nil {
		cache = store.NewCache(pg, redisStore.Client(), cfg.BoardCacheTTL)
		dataStore = cache
	}

	var verifier *auth.Verifier
	if strings.TrimSpace(cfg.JWKSURL) != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			logger.WithError(err).Fatal("jwks fetch failed")
		}
		defer jwks.EndBackground()
		verifier = auth.NewJWKSVerifier(jwks, cfg.JWTAudience, cfg.JWTIssuer)
		logger.WithField("jwks", cfg.JWKSURL).Info("verifying hosted identity tokens")
	} else {
		verifier = auth.NewLocalVerifier([]byte(cfg.JWTSecret), cfg.JWTAudience, cfg.JWTIssuer)
		issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.JWTAudience, cfg.JWTIssuer, func() string {
			return util.NewID("tok")
		})
		var revoker authpw.Revoker
		if redisStore != nil {
			revoker = redisStore
		}
		deps.Passwords = authpw.NewService(dataStore, issuer, revoker)
	}
	if redisStore != nil {
		verifier = verifier.WithDenylist(redisStore)
	}
	deps.Verifier = verifier

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	defer searchService.Close()
	go searchService.ReindexAllFromPG(context.Background())
	deps.Search = searchService

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err := media.NewService(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, dataStore, logger)
		if err != nil {
			logger.WithError(err).Fatal("object storage setup failed")
		}
		deps.Media = mediaService
	} else {
		logger.Warn("MINIO_ENDPOINT is not set, image uploads are disabled")
	}

	if strings.TrimSpace(cfg.StripeSecretKey) != "" {
		prices := billing.Prices{}
		if cfg.StripePricePro != "" {
			prices[cfg.StripePricePro] = plans.TierPro
		}
		if cfg.StripePriceTeam != "" {
			prices[cfg.StripePriceTeam] = plans.TierTeam
		}
		deps.Billing = billing.NewGateway(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Prices:        prices,
		}, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set, billing is disabled")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: "LifeBlocks",
	}, logger)
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	} else {
		logger.Info("SMTP_HOST is not set, share notices are disabled")
	}

	var service *app.Service
	if cache != nil {
		service = app.New(cfg, cache, deps)
	} else {
		service = app.New(cfg, pg, deps)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	stop := make(chan struct{})
	defer close(stop)
	if cfg.RateLimitRPS > 0 {
		limiter := metrics.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst, httpServer.RateKey).OnReject(m.RecordRateLimited)
		limiter.StartCleanup(5*time.Minute, stop)
		httpServer = httpServer.WithRateLimiter(limiter)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("LifeBlocks API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}

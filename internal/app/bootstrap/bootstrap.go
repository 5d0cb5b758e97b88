package bootstrap

import (
	"context"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"blogpress/app/internal/article"
	"blogpress/app/internal/auth"
	"blogpress/app/internal/config"
	"blogpress/app/internal/db"
	apphttp "blogpress/app/internal/http"
	"blogpress/app/internal/media"
	"blogpress/app/internal/user"
	"blogpress/app/internal/validate"
)

type Dependencies struct {
	Config    config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

type Result struct {
	Articles   article.Service
	Users      user.Service
	HTTPServer *apphttp.Server
	Database   *gorm.DB
	Cleanup    func() error
}

// Build composes the blogpress application layers and returns the constructed components.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	cfg := deps.Config

	gormDB, err := db.Open(db.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DatabaseURL,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "opening database")
	}

	var redisClient *redis.Client
	closeAll := func() error {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil && deps.Logger != nil {
				deps.Logger.WithError(err).Error("closing redis client")
			}
		}
		return db.Close(gormDB)
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := closeAll(); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing database after bootstrap failure")
		}
		return Result{}, wrapper
	}

	if err := user.Migrate(ctx, gormDB, deps.Logger); err != nil {
		return closeOnError(eris.Wrap(err, "running user migrations"))
	}
	if err := article.Migrate(ctx, gormDB, deps.Logger); err != nil {
		return closeOnError(eris.Wrap(err, "running article migrations"))
	}

	userRepo, err := user.NewRepository(gormDB, deps.Logger, cfg.StoreTimeout)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating user repository"))
	}
	articleRepo, err := article.NewRepository(gormDB, deps.Logger, cfg.StoreTimeout)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating article repository"))
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating token manager"))
	}

	validator := validate.New()

	store, uploads, err := buildObjectStore(ctx, cfg.Media)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating media store"))
	}

	mediaHandler, err := media.NewHandler(media.HandlerOptions{
		Store:    store,
		MaxBytes: cfg.Media.MaxBytes,
		Timeout:  cfg.Media.StorageTimeout,
		Logger:   deps.Logger,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating media handler"))
	}

	users, err := user.NewService(user.ServiceOptions{
		Repository: userRepo,
		Validator:  validator,
		Tokens:     tokens,
		Logger:     deps.Logger,
		SentryHub:  deps.SentryHub,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating user service"))
	}

	articles, err := article.NewService(article.ServiceOptions{
		Repository: articleRepo,
		Validator:  validator,
		Media:      mediaHandler,
		Logger:     deps.Logger,
		SentryHub:  deps.SentryHub,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating article service"))
	}

	if err := users.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return closeOnError(eris.Wrap(err, "seeding admin account"))
	}

	authenticator, err := auth.NewAuthenticator(tokens, users)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating authenticator"))
	}

	var limiter apphttp.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err = apphttp.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return closeOnError(eris.Wrap(err, "connecting rate limiter store"))
		}
		limiter, err = apphttp.NewRedisLimiter(redisClient, cfg.RateLimit.Burst, cfg.RateLimit.RequestsPerSecond, deps.Logger)
		if err != nil {
			return closeOnError(eris.Wrap(err, "creating redis rate limiter"))
		}
	}

	httpServer, err := apphttp.NewServer(apphttp.Options{
		Articles:      articles,
		Users:         users,
		Authenticator: authenticator,
		Database:      gormDB,
		Logger:        deps.Logger,
		SentryHub:     deps.SentryHub,
		Limiter:       limiter,
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             cfg.RateLimit.Burst,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
		MaxUploadBytes:    cfg.Media.MaxBytes,
		Uploads:           uploads,
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}

	return Result{
		Articles:   articles,
		Users:      users,
		HTTPServer: httpServer,
		Database:   gormDB,
		Cleanup:    closeAll,
	}, nil
}

// buildObjectStore selects the thumbnail backend. Only the local backend is served by
// this process, so only it yields upload settings.
func buildObjectStore(ctx context.Context, cfg config.Media) (media.ObjectStore, apphttp.UploadSettings, error) {
	switch cfg.Backend {
	case config.MediaS3:
		store, err := media.NewS3Store(ctx, media.S3Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			PublicURL:    cfg.S3.PublicURL,
			UsePathStyle: cfg.S3.Endpoint != "",
		})
		if err != nil {
			return nil, apphttp.UploadSettings{}, err
		}
		return store, apphttp.UploadSettings{}, nil
	default:
		store, err := media.NewLocalStore(cfg.Dir, cfg.BaseURL)
		if err != nil {
			return nil, apphttp.UploadSettings{}, err
		}
		return store, apphttp.UploadSettings{Dir: store.Dir(), Prefix: uploadPrefix(store.BaseURL())}, nil
	}
}

func uploadPrefix(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Path == "" {
		return "/uploads"
	}
	return parsed.Path
}

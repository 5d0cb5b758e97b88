package http

import (
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"blogpress/app/internal/article"
	"blogpress/app/internal/user"
)

// formOverheadBytes leaves room for the text fields sent alongside an upload.
const formOverheadBytes = 1 << 20

// Options configures the HTTP server wiring.
type Options struct {
	Articles       article.Service
	Users          user.Service
	Authenticator  Authenticator
	Database       *gorm.DB
	Logger         *logrus.Logger
	SentryHub      *sentry.Hub
	Limiter        Limiter
	RateLimiter    RateLimiterSettings
	MaxUploadBytes int64
	Uploads        UploadSettings

	// TrustProxyHeaders keys rate limits by X-Forwarded-For / X-Real-IP instead of
	// the connection address.
	TrustProxyHeaders bool
}

// RateLimiterSettings configures the in-memory limiter used when no Limiter is supplied.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// UploadSettings exposes locally stored media. An empty Dir disables the route.
type UploadSettings struct {
	Dir    string
	Prefix string
}

// Server wires the HTTP transport layer via Huma.
type Server struct {
	api            huma.API
	mux            *stdhttp.ServeMux
	articles       article.Service
	users          user.Service
	authenticator  Authenticator
	logger         *logrus.Logger
	sentry         *sentry.Hub
	db             *gorm.DB
	limiter        Limiter
	maxUploadBytes int64
	uploads        UploadSettings
	trustProxy     bool
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Articles == nil {
		return nil, eris.New("article service is required")
	}
	if opts.Users == nil {
		return nil, eris.New("user service is required")
	}
	if opts.Authenticator == nil {
		return nil, eris.New("authenticator is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}
	if opts.MaxUploadBytes <= 0 {
		return nil, eris.New("max upload bytes must be greater than zero")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Blogpress", "1.0.0")
	config.Info.Description = "Articles, categories and accounts for the Blogpress CMS."

	api := humago.New(mux, config)

	srv := &Server{
		api:            api,
		mux:            mux,
		articles:       opts.Articles,
		users:          opts.Users,
		authenticator:  opts.Authenticator,
		logger:         opts.Logger,
		sentry:         opts.SentryHub,
		db:             opts.Database,
		limiter:        opts.Limiter,
		maxUploadBytes: opts.MaxUploadBytes,
		uploads:        opts.Uploads,
		trustProxy:     opts.TrustProxyHeaders,
	}

	if srv.limiter == nil {
		settings := opts.RateLimiter
		if settings.Burst <= 0 {
			return nil, eris.New("rate limiter burst must be greater than zero")
		}
		if settings.RequestsPerSecond <= 0 {
			return nil, eris.New("rate limiter requests per second must be greater than zero")
		}
		if settings.ClientTTL <= 0 {
			return nil, eris.New("rate limiter client TTL must be greater than zero")
		}
		srv.limiter = NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL)
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerUploadRoute()
	s.registerHealthRoute()
	s.registerAuthRoutes()
	s.registerCategoryRoutes()
	s.registerArticleRoutes()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) formBodyLimit() int64 {
	return s.maxUploadBytes + formOverheadBytes
}

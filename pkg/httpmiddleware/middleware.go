// Package httpmiddleware assembles the chi middleware stack shared by every
// HTTP entrypoint.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/unrolled/secure"
)

// Config selects which middleware ApplyToRouter installs.
type Config struct {
	Logger         logger.Logger
	AllowedOrigins []string
	Security       *secure.Options
	Timeout        time.Duration
	MaxBodyBytes   int64

	EnableCorrelationID bool
	EnableLogging       bool
	EnableRecovery      bool
	EnableCORS          bool
	EnableSecurity      bool
	EnableHeartbeat     bool
}

// DefaultConfig returns the production stack. Logging needs a Logger.
func DefaultConfig(log logger.Logger) Config {
	return Config{
		Logger:              log,
		AllowedOrigins:      []string{"https://*", "http://*"},
		Timeout:             30 * time.Second,
		MaxBodyBytes:        4 << 20,
		EnableCorrelationID: true,
		EnableLogging:       log != nil,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableHeartbeat:     true,
	}
}

// ApplyToRouter installs the configured middleware, outermost first:
// correlation ID, security headers, real IP, logging, recovery, CORS,
// timeout, body limit and the /ping heartbeat.
func ApplyToRouter(router chi.Router, config Config) {
	if config.EnableCorrelationID {
		router.Use(CorrelationID)
	}
	if config.EnableSecurity {
		router.Use(Security(config.Security))
	}
	router.Use(middleware.RealIP)
	if config.EnableLogging && config.Logger != nil {
		router.Use(RequestLogging(config.Logger))
	}
	if config.EnableRecovery {
		router.Use(Recovery(config.Logger))
	}
	if config.EnableCORS {
		router.Use(CORS(config.AllowedOrigins))
	}
	if config.Timeout > 0 {
		router.Use(middleware.Timeout(config.Timeout))
	}
	if config.MaxBodyBytes > 0 {
		router.Use(middleware.RequestSize(config.MaxBodyBytes))
	}
	if config.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// CorrelationID keeps a valid client-supplied X-Correlation-ID or mints a
// new one, and stores it in the request context.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, id := logger.EnsureHTTPCorrelationID(r)
		w.Header().Set(logger.CorrelationIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// CORS allows the given origins for the JSON API verbs.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", logger.CorrelationIDHeader},
		ExposedHeaders: []string{logger.CorrelationIDHeader},
		MaxAge:         300,
	})
}

// Security adds the unrolled/secure headers. A nil opts uses its defaults.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		return secure.New().Handler
	}
	return secure.New(*opts).Handler
}

// RequestLogging logs one line per request once the response is written.
func RequestLogging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), log).Info("HTTP request handled",
				logger.StringField("http_method", r.Method),
				logger.StringField("http_path", r.URL.Path),
				logger.StringField("client_ip", r.RemoteAddr),
				logger.IntField("http_status", ww.Status()),
				logger.IntField("response_bytes", ww.BytesWritten()),
				logger.DurationField("duration", time.Since(start)),
			)
		})
	}
}

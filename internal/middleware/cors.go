package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"dicedecision/pkg/logger"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the headers the decision API reads and exposes
// the ones it writes
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"Authorization",
			ActorHeader,
			RequestIDHeader,
			IdempotencyKeyHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader, ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}
}

// CORS answers preflights itself and decorates every other response.
// An empty AllowedOrigins list reflects any origin; "*" never combines
// with credentials.
func CORS(config *CORSConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}

	origins := make(map[string]bool, len(config.AllowedOrigins))
	for _, origin := range config.AllowedOrigins {
		origins[origin] = true
	}
	wildcard := origins["*"]
	reflectAll := len(origins) == 0

	static := map[string]string{
		"Access-Control-Allow-Methods":  strings.Join(config.AllowedMethods, ", "),
		"Access-Control-Allow-Headers":  strings.Join(config.AllowedHeaders, ", "),
		"Access-Control-Expose-Headers": strings.Join(config.ExposedHeaders, ", "),
	}
	if config.MaxAge > 0 {
		static["Access-Control-Max-Age"] = strconv.Itoa(config.MaxAge)
	}

	allowOrigin := func(origin string) (string, bool) {
		switch {
		case origin == "":
			return "", false
		case reflectAll || origins[origin]:
			return origin, true
		case wildcard && !config.AllowCredentials:
			return "*", true
		case wildcard:
			return origin, true
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			allowed, ok := allowOrigin(origin)
			if ok {
				h.Set("Access-Control-Allow-Origin", allowed)
				if config.AllowCredentials && allowed != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				for k, v := range static {
					if v != "" {
						h.Set(k, v)
					}
				}
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			fields := map[string]interface{}{
				"origin":     origin,
				"path":       r.URL.Path,
				"request_id": RequestIDFromContext(r.Context()),
				"actor":      r.Header.Get(ActorHeader),
			}
			if !ok {
				log.WithFields(fields).Warn("Rejected CORS preflight")
				w.WriteHeader(http.StatusForbidden)
				return
			}
			log.WithFields(fields).Debug("CORS preflight")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

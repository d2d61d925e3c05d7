package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// IdentityMiddleware resolves the tenant and actor for the request.
// Authentication happens upstream (gateway); this service trusts the
// forwarded headers and only parses them. Requests without a tenant pass
// through unauthenticated and get rejected by the handlers.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
		if err != nil || tenantID <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
		ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{TenantID: tenantID, ActorID: actorID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MiddlewareStack installs the middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	ratePerMinute := 120
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		ratePerMinute = cfg.Config.RateLimitPerMinute
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(ratePerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		IdentityMiddleware,
	}
}

package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/comercia/comercia/internal/observability"
	"github.com/comercia/comercia/internal/platform/httpx"
	"github.com/comercia/comercia/internal/shared"
)

const (
	// HeaderWorkspace carries the workspace resolved by the gateway.
	HeaderWorkspace = "X-Workspace-ID"
	// HeaderActor carries the authenticated user id.
	HeaderActor = "X-Actor-ID"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the global middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
	}

	middlewares := []func(http.Handler) http.Handler{
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
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// ScopeMiddleware resolves the caller's workspace and actor from the headers
// set by the authenticating gateway. A missing workspace leaves the scope
// empty and services answer 401; a malformed one is rejected here.
func ScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var scope shared.Scope
		if raw := r.Header.Get(HeaderWorkspace); raw != "" {
			ws, err := uuid.Parse(raw)
			if err != nil {
				httpx.RespondError(w, shared.Validation("invalid %s header", HeaderWorkspace))
				return
			}
			scope.WorkspaceID = ws
		}
		if raw := r.Header.Get(HeaderActor); raw != "" {
			actor, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || actor <= 0 {
				httpx.RespondError(w, shared.Validation("invalid %s header", HeaderActor))
				return
			}
			scope.ActorID = actor
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithScope(r.Context(), scope)))
	})
}

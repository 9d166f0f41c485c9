package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/api/handlers"
	"github.com/gatherly/server/internal/api/middleware"
	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/auth/oauth"
	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/domain/events"
	"github.com/gatherly/server/internal/domain/users"
	"github.com/gatherly/server/internal/metrics"
	"github.com/gatherly/server/internal/storage/postgres"
)

// RouterDeps carries everything the router needs; the serve command builds
// it once at startup.
type RouterDeps struct {
	Pool    *pgxpool.Pool
	Config  config.Config
	Logger  zerolog.Logger
	Version string
	Commit  string
}

func NewRouter(deps RouterDeps) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger

	accessKey, err := auth.DeriveAccessJWTKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, err
	}
	refreshKey, err := auth.DeriveRefreshJWTKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, err
	}
	accessTokens := auth.NewJWTManager(accessKey, cfg.Auth.AccessExpiry, "gatherly")
	refreshTokens := auth.NewJWTManager(refreshKey, cfg.Auth.RefreshExpiry, "gatherly")

	var google *oauth.GoogleClient
	if cfg.OAuth.GoogleClientID != "" {
		google = oauth.NewGoogleClient(oauth.GoogleConfig{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			CallbackURL:  cfg.OAuth.GoogleCallbackURL,
		})
	}

	usersService := users.NewService(postgres.NewUsersRepository(deps.Pool), logger)
	eventsService := events.NewService(postgres.NewEventsRepository(deps.Pool), logger)

	authHandler := handlers.NewAuthHandler(usersService, accessTokens, refreshTokens, google, cfg, logger)
	usersHandler := handlers.NewUsersHandler(usersService, accessTokens, logger)
	eventsHandler := handlers.NewEventsHandler(eventsService, logger)
	healthHandler := handlers.NewHealthHandler(deps.Pool, deps.Version, deps.Commit)

	requireAuth := middleware.RequireAuth(accessTokens)
	authLimit := middleware.AuthRateLimit(cfg.RateLimit.AuthPerMinute)

	mux := http.NewServeMux()

	mux.Handle("/healthz", http.HandlerFunc(healthHandler.Healthz))
	mux.Handle("/readyz", http.HandlerFunc(healthHandler.Readyz))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/auth/register", authLimit(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Register),
	})))
	mux.Handle("/auth/login", authLimit(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Login),
	})))
	mux.Handle("/auth/refresh", authLimit(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Refresh),
	})))
	mux.Handle("/auth/logout", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Logout),
	}))
	mux.Handle("/auth/google", authLimit(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(authHandler.GoogleLogin),
	})))
	mux.Handle("/auth/google/callback", authLimit(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(authHandler.GoogleCallback),
	})))

	mux.Handle("/users", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(usersHandler.Me),
	})))
	mux.Handle("/users/connection-id", requireAuth(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(usersHandler.ConnectionID),
		http.MethodGet:  http.HandlerFunc(usersHandler.ConnectionID),
	})))
	mux.Handle("/users/connections", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(usersHandler.Connections),
		http.MethodPost: http.HandlerFunc(usersHandler.Connect),
	})))
	mux.Handle("/users/connections/{peerId}", requireAuth(methodMux(map[string]http.Handler{
		http.MethodDelete: http.HandlerFunc(usersHandler.Disconnect),
	})))
	mux.Handle("/users/connections/{peerId}/preferences", requireAuth(methodMux(map[string]http.Handler{
		http.MethodPatch: http.HandlerFunc(usersHandler.Preferences),
	})))

	mux.Handle("/events", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.Feed),
		http.MethodPost: http.HandlerFunc(eventsHandler.Create),
	})))
	mux.Handle("/events/past", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(eventsHandler.Past),
	})))
	mux.Handle("/events/categories", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.Categories),
		http.MethodPost: http.HandlerFunc(eventsHandler.CreateCategory),
	})))
	mux.Handle("/events/{eventId}", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(eventsHandler.Get),
		http.MethodPut:    http.HandlerFunc(eventsHandler.Update),
		http.MethodDelete: http.HandlerFunc(eventsHandler.Delete),
	})))
	mux.Handle("/events/{eventId}/privacy", requireAuth(methodMux(map[string]http.Handler{
		http.MethodPatch: http.HandlerFunc(eventsHandler.TogglePrivacy),
	})))
	mux.Handle("/events/{eventId}/copy", requireAuth(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(eventsHandler.Copy),
	})))
	mux.Handle("/events/{eventId}/linked", requireAuth(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(eventsHandler.Linked),
	})))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigin, logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler, nil
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}

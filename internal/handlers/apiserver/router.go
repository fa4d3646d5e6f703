package apiserver

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"connect-go/internal/auth"
	"connect-go/internal/config"
	"connect-go/internal/middleware"
	"connect-go/internal/services"
)

// RouterDeps 汇集构建路由所需的服务与配置。
type RouterDeps struct {
	DB          *gorm.DB
	Auth        config.AuthConfig
	RateLimit   config.RateLimitConfig
	Blacklist   auth.TokenBlacklist
	AuthService services.AuthService
	UserService services.UserService
	Ledger      services.ConnectionRequestService
	Feed        services.FeedService
	Gatherer    prometheus.Gatherer
	Limiter     *middleware.RateLimiter // nil 时按 RateLimit 配置创建
}

// NewRouter 设置 HTTP 路由。
func NewRouter(d RouterDeps) *mux.Router {
	authHandler := NewAuthHandler(d.AuthService)
	userHandler := NewUserHandler(d.UserService)
	reqHandler := NewConnectionRequestHandler(d.Ledger, d.Feed)

	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(d.RateLimit.RequestsPerMinute, d.RateLimit.Burst)
	}

	r := mux.NewRouter()

	// 公开路由
	r.HandleFunc("/healthz", healthHandler(d.DB)).Methods(http.MethodGet)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	// 需要认证的 API 子路由
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(d.Auth, d.Blacklist))

	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	apiRouter.HandleFunc("/profile", userHandler.GetMyProfile).Methods(http.MethodGet)
	apiRouter.HandleFunc("/profile", userHandler.UpdateMyProfile).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/profile/password", userHandler.ChangePassword).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/users/{userID:[0-9]+}", userHandler.GetUserProfile).Methods(http.MethodGet)

	apiRouter.HandleFunc("/feed", reqHandler.Feed).Methods(http.MethodGet)
	apiRouter.HandleFunc("/connections", reqHandler.Connections).Methods(http.MethodGet)

	requestRouter := apiRouter.PathPrefix("/requests").Subrouter()
	requestRouter.Handle("", limiter.PerUser(http.HandlerFunc(reqHandler.SendRequest))).Methods(http.MethodPost)
	requestRouter.HandleFunc("/received", reqHandler.ListReceived).Methods(http.MethodGet)
	requestRouter.HandleFunc("/sent", reqHandler.ListSent).Methods(http.MethodGet)
	requestRouter.HandleFunc("/accepted", reqHandler.ListAccepted).Methods(http.MethodGet)
	requestRouter.HandleFunc("/{requestID:[0-9]+}", reqHandler.GetRequest).Methods(http.MethodGet)
	requestRouter.HandleFunc("/{requestID:[0-9]+}/accept", reqHandler.Accept).Methods(http.MethodPost)
	requestRouter.HandleFunc("/{requestID:[0-9]+}/reject", reqHandler.Reject).Methods(http.MethodPost)
	requestRouter.HandleFunc("/{requestID:[0-9]+}/ignore", reqHandler.Ignore).Methods(http.MethodPost)

	return r
}

// WithCORS 将路由器包装在 CORS 中间件中，选项来自配置。
func WithCORS(cfg config.CORSConfig, h http.Handler) http.Handler {
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods(cfg.AllowedMethods),
		handlers.AllowedHeaders(cfg.AllowedHeaders),
		handlers.ExposedHeaders(cfg.ExposedHeaders),
		handlers.MaxAge(cfg.MaxAge),
	}
	if cfg.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	return handlers.CORS(corsOptions...)(h)
}

func healthHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(r.Context())
			}
			if err != nil {
				writeJSONError(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

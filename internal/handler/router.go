package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/csaccess/internal/metrics"
	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Guard              *middleware.AuthGuard
	APILimiter         *middleware.RateLimiter
	AuthLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
	Logger             *slog.Logger
	Observer           middleware.StatusObserver
	// TrustProxy がtrueの場合、X-Forwarded-For等からクライアントIPを決定する。
	TrustProxy bool
	Production bool

	// サービス
	AuthService   AuthServiceInterface
	CourseService CourseServiceInterface
	UserService   UserServiceInterface

	// 運用
	DB             Pinger
	Environment    string
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP(任意) → Logging → Recovery → SecurityHeaders → CORS → BodyLimit
//
// /api 配下にはAPIレート制限、/api/auth 配下には加えて認証用のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = metrics.Nop{}
	}

	r := chi.NewRouter()

	// サブルーターに引き継がれるよう、ルート定義より先に設定する
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteAPIError(w, model.NewRouteNotFoundError(req.Method, req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteAPIError(w, model.NewMethodNotAllowedError(req.Method, req.URL.Path))
	})

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger, observer))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Production))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewBodyLimitMiddleware(middleware.DefaultMaxBodyBytes))

	guard := deps.Guard
	authHandler := NewAuthHandler(deps.AuthService, deps.Production)
	courseHandler := NewCourseHandler(deps.CourseService, deps.Production)
	userHandler := NewUserHandler(deps.UserService, deps.Production)
	healthHandler := NewHealthHandler(deps.DB, deps.Environment)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.APILimiter != nil {
			r.Use(deps.APILimiter.Middleware())
		}

		r.Get("/health", healthHandler.Health)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			if deps.AuthLimiter != nil {
				r.Use(deps.AuthLimiter.Middleware())
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(guard.Required())
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
				r.Get("/verify", authHandler.Verify)
			})
		})

		// コース
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", courseHandler.ListCourses)
			r.Get("/meta/categories", courseHandler.ListCategories)
			r.With(guard.Required()).Get("/user/enrollments", courseHandler.ListEnrollments)
			r.With(guard.Required(), guard.RequireRole(model.RoleAdmin)).Post("/", courseHandler.CreateCourse)

			r.Route("/{courseId}", func(r chi.Router) {
				r.With(guard.Optional()).Get("/", courseHandler.GetCourse)
				r.Get("/lessons", courseHandler.ListLessons)
				r.With(guard.Required()).Post("/enroll", courseHandler.Enroll)
			})
		})

		// ユーザー
		r.Route("/users", func(r chi.Router) {
			r.Use(guard.Required())
			r.Get("/profile", userHandler.Profile)
			r.Put("/profile", userHandler.UpdateProfile)
			r.Get("/dashboard", userHandler.Dashboard)
			r.Get("/progress/{courseId}", userHandler.Progress)
		})
	})

	return r
}

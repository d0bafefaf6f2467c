package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/dhcommerce/internal/metrics"
	"github.com/hitoshi/dhcommerce/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	AdminVerifier      middleware.AdminVerifier
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler

	Health *HealthHandler
	Rating *RatingHandler
	Email  *EmailHandler
	Food   *FoodHandler
	Trade  *TradeHandler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit(公開API) → AdminAuth(管理API)
//
// ヘルスチェックとメトリクスはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	// --- 監視用ルート ---
	r.Get("/", deps.Health.Home)
	r.Get("/health", deps.Health.Health)
	r.Get("/api/health", deps.Health.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- レート制限付きのルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		// 評価フォーム（メールのリンクから開かれる）
		r.Get("/rate/{transactionId}/{role}", deps.Rating.Form)
		r.Post("/rate/{transactionId}/{role}", deps.Rating.Submit)

		// 単発通知
		r.Post("/api/send_welcome_email", deps.Email.SendWelcome)
		r.Post("/api/send_trade_request", deps.Email.SendTradeRequest)
		r.Post("/api/send_trade_accepted", deps.Email.SendTradeAccepted)
		r.Get("/api/test-email", deps.Email.SendTest)

		// 公開API
		r.Get("/api/foods", deps.Food.List)
		r.Get("/api/admin/check", deps.Food.AdminCheck)
		r.Get("/api/trade-history/{userId}", deps.Trade.History)

		// 管理API
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminVerifier))

			r.Route("/api/admin/foods", func(r chi.Router) {
				r.Get("/", deps.Food.List)
				r.Post("/", deps.Food.Create)
				r.Put("/", deps.Food.Update)
				r.Delete("/", deps.Food.Delete)
			})
			r.Post("/api/init_foods", deps.Food.SeedSamples)
		})
	})

	return r
}

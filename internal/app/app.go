package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/dhcommerce/internal/auth"
	"github.com/hitoshi/dhcommerce/internal/config"
	"github.com/hitoshi/dhcommerce/internal/database"
	"github.com/hitoshi/dhcommerce/internal/food"
	"github.com/hitoshi/dhcommerce/internal/handler"
	"github.com/hitoshi/dhcommerce/internal/logger"
	"github.com/hitoshi/dhcommerce/internal/mailer"
	"github.com/hitoshi/dhcommerce/internal/metrics"
	"github.com/hitoshi/dhcommerce/internal/middleware"
	"github.com/hitoshi/dhcommerce/internal/rating"
	"github.com/hitoshi/dhcommerce/internal/repository"
	"github.com/hitoshi/dhcommerce/internal/security"
	"github.com/hitoshi/dhcommerce/internal/trade"
	"github.com/hitoshi/dhcommerce/internal/worker/notify"
)

// Version はビルド時に -ldflags "-X github.com/hitoshi/dhcommerce/internal/app.Version=..." で上書きする。
var Version = "dev"

// defaultAdminTokenTTL はadmin-tokenコマンドで有効期限を省略した場合の値。
const defaultAdminTokenTTL = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// admin-token は出力先にトークンのみを書き出すため、ログを初期化しない
	if cmd == CommandAdminToken {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		return runAdminToken(w, cfg, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("port", cfg.ServerPort),
		slog.String("public_base_url", cfg.PublicBaseURL),
		slog.String("timezone", cfg.OrgTimezone.String()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はserve/workerで共有する組み立て済みの依存関係。
type components struct {
	router    http.Handler
	limiter   *middleware.RateLimiter
	scheduler *notify.Scheduler
}

// build はDB接続から全依存関係をワイヤリングする。
// DB接続自体は確認しないため、疎通確認は呼び出し側で行う。
func build(cfg *config.Config, db *sql.DB, log *slog.Logger) *components {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	txRepo := repository.NewPostgresTransactionRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	foodRepo := repository.NewPostgresFoodRepo(db)
	ratingRepo := repository.NewPostgresRatingRepo(db)

	// 3. 横断的なサービスの初期化
	sanitizer := security.NewTextSanitizer(security.DefaultMaxTextLength)
	transport := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:          cfg.EmailHost,
		Port:          cfg.EmailPort,
		Username:      cfg.EmailUser,
		Password:      cfg.EmailPass,
		UseTLS:        cfg.EmailUseTLS,
		Timeout:       cfg.EmailSendTimeout,
		RatePerMinute: cfg.EmailRatePerMinute,
	}, log, mc)
	if !transport.Configured() {
		log.Warn("EMAIL_USER/EMAIL_PASSが未設定のため、メールは送信されません")
	}

	// 通知スイープは公開メールAPIとは別の送信レート枠を使う
	sweepTransport := transport.Dedicated()

	links := auth.NewRatingLinks(cfg.PublicBaseURL, cfg.RatingLinkSecret, cfg.RatingLinkTTL)
	if !links.Enabled() {
		log.Warn("RATING_LINK_SECRETが未設定のため、評価リンクは署名されません")
	}
	adminTokens := auth.NewAdminTokens(cfg.AdminTokenSecret)
	if !adminTokens.Enabled() {
		log.Warn("ADMIN_TOKEN_SECRETが未設定のため、管理APIはすべて拒否されます")
	}

	// 4. ドメインサービスの初期化
	ratingService := rating.NewService(txRepo, ratingRepo, sanitizer, mc, log)
	foodService := food.NewService(foodRepo, userRepo, sanitizer, log, cfg.OrgTimezone)
	historyService := trade.NewHistoryService(txRepo, foodRepo, userRepo)

	// 5. 通知スイープ
	deps := notify.Deps{
		Transactions: txRepo,
		Users:        userRepo,
		Foods:        foodRepo,
		Transport:    sweepTransport,
		Metrics:      mc,
		Logger:       log,
		Location:     cfg.OrgTimezone,
	}
	scheduler := notify.NewScheduler(log, cfg.SweepInterval,
		notify.NewReminderSweep(deps, notify.ReminderOptions{
			Lead:          cfg.ReminderLead,
			TradeLocation: cfg.TradeLocation,
			EscalateAfter: cfg.SkipEscalateAfter,
		}),
		notify.NewRatingRequestSweep(deps, links, cfg.RatingRequestGrace, cfg.SkipEscalateAfter),
	)

	// 6. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitPublic))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		AdminVerifier:      adminTokens,
		Metrics:            mc,
		MetricsHandler:     metrics.Handler(reg),

		Health: handler.NewHealthHandler(db, transport.Configured(), Version),
		Rating: handler.NewRatingHandler(ratingService, links, cfg.FrontendURL),
		Email: handler.NewEmailHandler(transport, sanitizer, handler.EmailHandlerConfig{
			TestRecipient: cfg.EmailUser,
			SMTPHost:      cfg.EmailHost,
			TradeLocation: cfg.TradeLocation,
			DefaultAppURL: cfg.FrontendURL,
		}),
		Food:  handler.NewFoodHandler(foodService),
		Trade: handler.NewTradeHandler(historyService),
	})

	return &components{
		router:    router,
		limiter:   limiter,
		scheduler: scheduler,
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL, database.ConnectOptions{
		Attempts: cfg.DatabaseConnectAttempts,
		Wait:     2 * time.Second,
	})
}

// runServe はAPIサーバーモードで起動する。
// SCHEDULER_IN_SERVERがtrueの場合は通知スイープも同じプロセスで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	c := build(cfg, db, slog.Default())
	defer c.limiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.SchedulerInServer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.scheduler.Start(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server listen error: %w", err)
		}
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// 実行中のスイープは現在の取引の処理を終えてから停止する
	wg.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、リマインダーと評価依頼の2つのスイープを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	c := build(cfg, db, slog.Default())
	c.limiter.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("reminder_lead", cfg.ReminderLead),
		slog.Duration("rating_request_grace", cfg.RatingRequestGrace),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runAdminToken は管理API用のBearerトークンを発行してwに書き出す。
// 引数: <userId> [ttl]
func runAdminToken(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New("usage: dhcommerce admin-token <userId> [ttl]")
	}

	ttl := defaultAdminTokenTTL
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid ttl %q", args[1])
		}
		ttl = d
	}

	token, err := auth.NewAdminTokens(cfg.AdminTokenSecret).Issue(args[0], ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, token)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

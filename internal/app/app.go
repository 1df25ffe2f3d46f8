// Package app はコマンドの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/itemcatalog/internal/auth"
	"github.com/hitoshi/itemcatalog/internal/catalog"
	"github.com/hitoshi/itemcatalog/internal/config"
	"github.com/hitoshi/itemcatalog/internal/database"
	"github.com/hitoshi/itemcatalog/internal/handler"
	"github.com/hitoshi/itemcatalog/internal/logger"
	"github.com/hitoshi/itemcatalog/internal/metrics"
	"github.com/hitoshi/itemcatalog/internal/repository"
	"github.com/hitoshi/itemcatalog/internal/security"
	"github.com/hitoshi/itemcatalog/internal/seed"
	"github.com/hitoshi/itemcatalog/internal/session"
	"github.com/hitoshi/itemcatalog/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再設定
	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドを省略した場合はserveとして起動する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// openDatabase はコネクションプールを開き、接続を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newMetrics はメトリクスの収集先と公開用ハンドラーを生成する。
// 無効な場合は何も記録しないコレクターとnilのハンドラーを返す。
func newMetrics(cfg *config.Config) (metrics.MetricsCollector, http.Handler) {
	if !cfg.MetricsEnabled {
		return metrics.Nop{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), metrics.Handler(reg)
}

// ownershipPolicy は設定値からアイテムの所有者ポリシーを決める。
func ownershipPolicy(cfg *config.Config) catalog.OwnershipPolicy {
	if cfg.EnforceItemOwnership {
		return catalog.OwnershipEnforced
	}
	return catalog.OwnershipPermissive
}

// buildRouter は全依存関係をワイヤリングしてルーターを構築する。
func buildRouter(cfg *config.Config, db *sql.DB) (http.Handler, error) {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	txManager := database.NewTxManager(db)

	// 2. メトリクス
	collector, metricsHandler := newMetrics(cfg)

	// 3. ドメインサービス
	provider := auth.NewGoogleProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Timeout:      cfg.ProviderTimeout,
		MaxRetries:   cfg.ProviderMaxRetries,
		RetryBackoff: cfg.ProviderRetryBackoff,
	}, collector)
	authService := auth.NewService(provider, userRepo, txManager,
		auth.ServiceConfig{ClientID: cfg.GoogleClientID},
		collector,
	)
	catalogService := catalog.NewService(categoryRepo, itemRepo, txManager,
		security.NewTextSanitizer(),
		ownershipPolicy(cfg),
	)

	// 4. セッション
	store := session.NewStore(sessionRepo, session.Config{
		MaxAge:       cfg.SessionMaxAgeDuration(),
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	})

	// 5. ルーター
	return handler.NewRouter(&handler.RouterDeps{
		SessionLoader:  store,
		SessionSaver:   store,
		AuthService:    authService,
		AuthConfig:     handler.AuthHandlerConfig{ClientID: cfg.GoogleClientID},
		CatalogService: catalogService,
		HealthChecker:  db,
		MetricsHandler: metricsHandler,
		Metrics:        collector,
		Logger:         slog.Default(),
		HTTPSOnly:      cfg.CookieSecure,
	})
}

// runServe はWebサーバーモードで起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	router, err := buildRouter(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動し、期限切れセッションを定期的に削除する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := cleanup.ValidateSchedule(cfg.SessionCleanupSchedule); err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), metrics.Nop{})
	if err := job.Start(ctx, cfg.SessionCleanupSchedule); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
	return nil
}

// runSeed はカテゴリとサンプルアイテムを投入する。
func runSeed(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	seeder := seed.NewSeeder(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresCategoryRepo(db),
		repository.NewPostgresItemRepo(db),
		database.NewTxManager(db),
		slog.Default(),
	)
	if _, err := seeder.Run(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// healthcheckPort はSERVER_PORTを読み、未設定なら既定のポートを返す。
// healthcheckは設定全体を読み込まない。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

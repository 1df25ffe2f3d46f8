package app

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/itemcatalog/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除ワーカーを起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はカテゴリとサンプルアイテムを投入することを示す。
	CommandSeed Command = "seed"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// runFunc は設定を読み込んだ後に実行するサブコマンドの本体。
type runFunc func(cmd *cobra.Command, cfg *config.Config) error

// NewRootCommand はitemcatalogのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, cfg *config.Config) error {
		return runServe(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:           "itemcatalog",
		Short:         "Item catalog web application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withConfig(w, CommandServe, serve),
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the web server",
			Args:  cobra.NoArgs,
			RunE:  withConfig(w, CommandServe, serve),
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Delete expired sessions on a schedule",
			Args:  cobra.NoArgs,
			RunE: withConfig(w, CommandWorker, func(cmd *cobra.Command, cfg *config.Config) error {
				return runWorker(cmd.Context(), cfg)
			}),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply database migrations",
			Args:  cobra.NoArgs,
			RunE: withConfig(w, CommandMigrate, func(_ *cobra.Command, cfg *config.Config) error {
				return runMigrate(cfg)
			}),
		},
		&cobra.Command{
			Use:   string(CommandSeed),
			Short: "Insert the reference categories and sample items",
			Args:  cobra.NoArgs,
			RunE: withConfig(w, CommandSeed, func(cmd *cobra.Command, cfg *config.Config) error {
				return runSeed(cmd.Context(), cfg)
			}),
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Check the /health endpoint of a running server",
			Args:  cobra.NoArgs,
			// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runHealthcheck(cmd.Context(), healthcheckPort())
			},
		},
	)
	return root
}

// withConfig は設定とログを初期化してからサブコマンドを実行するRunEを返す。
func withConfig(w io.Writer, name Command, run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := Init(w)
		if err != nil {
			return err
		}
		slog.Info("starting application",
			slog.String("command", string(name)),
			slog.String("port", cfg.ServerPort),
		)
		return run(cmd, cfg)
	}
}

package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モード（サブコマンド名）を表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。サブコマンド省略時の既定。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションのクリーンアップを行うワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINT/SIGTERMでキャンセルされるコンテキストで実行する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// nilのままだとcobraがos.Argsを読むため空スライスに揃える
	if args == nil {
		args = []string{}
	}

	cmd := NewRootCommand(w)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand はtodomanのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := Init(w)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:           "todoman",
		Short:         "todoman - ソーシャルログイン付きTODO管理サーバー",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "APIサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "期限切れセッションのクリーンアップを定期実行する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := Init(w)
				if err != nil {
					return err
				}
				return runWorker(cmd.Context(), cfg)
			},
		},
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)

	return root
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var rollback int

	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "データベースマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, rollback)
		},
	}
	cmd.Flags().IntVar(&rollback, "rollback", 0, "直近のマイグレーションを指定件数だけ巻き戻す")

	return cmd
}

// newHealthcheckCommand は軽量サブコマンドのため、設定のフル読み込みを行わない。
func newHealthcheckCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "ローカルの/healthを確認する（Dockerヘルスチェック用）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				baseURL = "http://localhost:" + port
			}
			return runHealthcheck(cmd.Context(), baseURL)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "ヘルスチェック先のベースURL（既定: http://localhost:$SERVER_PORT）")

	return cmd
}

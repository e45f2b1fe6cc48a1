package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/honbob-navi/cmd/honbob-navi/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "honbob-navi",
		Usage: "혼밥（一人ごはん）向け店舗検索・レコメンドシステム",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "HTTPサーバとバックグラウンドワーカーを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServeAction,
			},
			{
				Name:  "score",
				Usage: "内部スコア管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "recalculate",
						Usage:  "全店舗の内部スコアを再計算",
						Flags:  []cli.Flag{envFlag},
						Action: commands.ScoreRecalculateAction,
					},
					{
						Name:   "pending",
						Usage:  "未計算・変更フラグ付き店舗のみ再計算",
						Flags:  []cli.Flag{envFlag},
						Action: commands.ScorePendingAction,
					},
				},
			},
			{
				Name:  "embedding",
				Usage: "Embedding管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "batch",
						Usage:  "未生成・失敗分のEmbeddingバッチサイクルを1回実行",
						Flags:  []cli.Flag{envFlag},
						Action: commands.EmbeddingBatchAction,
					},
					{
						Name:  "generate",
						Usage: "単一店舗のEmbeddingを同期生成",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "store",
								Usage:    "店舗ID (UUID)",
								Required: true,
							},
						},
						Action: commands.EmbeddingGenerateAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

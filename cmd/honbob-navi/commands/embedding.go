package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// EmbeddingBatchAction は埋め込み未生成・失敗分のバッチサイクルを1回実行する
func EmbeddingBatchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("Embeddingバッチサイクルを開始")

	stats, err := appCtx.Container.EmbeddingService.ProcessPendingBatch(ctx)
	if err != nil {
		slog.Error("Embeddingバッチに失敗しました", "error", err)
		return err
	}

	slog.Info("Embeddingバッチが完了しました",
		"requested", stats.Requested,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return nil
}

// EmbeddingGenerateAction は単一店舗の埋め込みを同期的に生成する
func EmbeddingGenerateAction(ctx context.Context, cmd *cli.Command) error {
	storeIDStr := cmd.String("store")
	envFile := cmd.String("env")

	storeID, err := uuid.Parse(storeIDStr)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("埋め込みの同期生成を開始", "store_id", storeID)

	if err := appCtx.Container.EmbeddingService.GenerateForStore(ctx, storeID); err != nil {
		slog.Error("埋め込みの生成に失敗しました", "store_id", storeID, "error", err)
		return err
	}

	slog.Info("埋め込みの生成が完了しました", "store_id", storeID)
	return nil
}

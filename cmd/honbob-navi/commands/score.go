package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// ScoreRecalculateAction は全店舗の内部スコアを再計算するコマンドのアクション
func ScoreRecalculateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("全店舗のスコア再計算を開始")

	updated, err := appCtx.Container.ScoringService.RecalculateAll(ctx)
	if err != nil {
		slog.Error("スコア再計算に失敗しました", "error", err)
		return err
	}

	slog.Info("スコア再計算が完了しました", "updated", updated)
	return nil
}

// ScorePendingAction は未計算・変更フラグ付き店舗のみ再計算するコマンドのアクション
func ScorePendingAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("未計算店舗のスコア再計算を開始")

	updated, err := appCtx.Container.ScoringService.RecalculatePending(ctx)
	if err != nil {
		slog.Error("スコア再計算に失敗しました", "error", err)
		return err
	}

	slog.Info("スコア再計算が完了しました", "updated", updated)
	return nil
}

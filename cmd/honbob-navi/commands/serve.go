package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/honbob-navi/internal/interface/httpapi"
	"github.com/jinford/honbob-navi/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// ServeAction はHTTPサーバとバックグラウンドワーカーを起動するコマンドのアクション
// ctx がキャンセルされる（SIGINT / SIGTERM）とグレースフルに停止する
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cont := appCtx.Container
	handler := httpapi.NewHandler(
		cont.SearchService,
		cont.RecommendService,
		cont.ScoringService,
		cont.EmbeddingService,
		appCtx.Logger(),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", appCtx.Config.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	// バックグラウンドワーカー（スコア再計算 + Embeddingバッチ）
	if appCtx.Config.Scheduler.Enabled {
		scheduler := worker.NewScheduler(
			cont.ScoringService,
			cont.EmbeddingService,
			appCtx.Config.Scheduler.ScoreInterval,
			appCtx.Config.Scheduler.EmbeddingInterval,
			appCtx.Logger(),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバを起動します", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTPサーバの起動に失敗しました: %w", err)
	case <-ctx.Done():
	}

	slog.Info("シャットダウンを開始します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPサーバの停止に失敗しました", "error", err)
	}

	wg.Wait()
	slog.Info("シャットダウンが完了しました")
	return nil
}

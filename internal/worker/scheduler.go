package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jinford/honbob-navi/internal/core/embedding"
)

const (
	// DefaultScoreInterval は内部スコア再計算のデフォルト間隔
	DefaultScoreInterval = 10 * time.Minute
	// DefaultEmbeddingInterval はEmbeddingバッチのデフォルト間隔
	DefaultEmbeddingInterval = 5 * time.Minute
)

// ScoreRecalculator は未計算・変更フラグ付き店舗のスコアを再計算する
type ScoreRecalculator interface {
	RecalculatePending(ctx context.Context) (int, error)
}

// EmbeddingBatcher は埋め込み未生成・失敗分のバッチサイクルを1回実行する
type EmbeddingBatcher interface {
	ProcessPendingBatch(ctx context.Context) (*embedding.BatchStats, error)
}

// Scheduler はスコア再計算とEmbedding生成を定期実行するバックグラウンドワーカー
type Scheduler struct {
	scores     ScoreRecalculator
	embeddings EmbeddingBatcher

	scoreInterval     time.Duration
	embeddingInterval time.Duration
	logger            *slog.Logger

	// 前サイクルが走行中の間は次サイクルを開始しない
	scoreMu sync.Mutex
	embedMu sync.Mutex
}

// NewScheduler は新しい Scheduler を作成する
func NewScheduler(scores ScoreRecalculator, embeddings EmbeddingBatcher, scoreInterval, embeddingInterval time.Duration, logger *slog.Logger) *Scheduler {
	if scoreInterval <= 0 {
		scoreInterval = DefaultScoreInterval
	}
	if embeddingInterval <= 0 {
		embeddingInterval = DefaultEmbeddingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scores:            scores,
		embeddings:        embeddings,
		scoreInterval:     scoreInterval,
		embeddingInterval: embeddingInterval,
		logger:            logger,
	}
}

// Run はコンテキストがキャンセルされるまで両方の定期処理を回し続ける
// 起動直後にまず1回ずつ実行してから、各間隔のループに入る
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"score_interval", s.scoreInterval,
		"embedding_interval", s.embeddingInterval,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.scoreInterval, s.runScoreCycle)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.embeddingInterval, s.runEmbeddingCycle)
	}()
	wg.Wait()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, cycle func(context.Context)) {
	cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// RunScoreCycleNow はスコア再計算サイクルを即時に1回実行する
func (s *Scheduler) RunScoreCycleNow(ctx context.Context) {
	s.runScoreCycle(ctx)
}

// RunEmbeddingCycleNow はEmbeddingバッチサイクルを即時に1回実行する
func (s *Scheduler) RunEmbeddingCycleNow(ctx context.Context) {
	s.runEmbeddingCycle(ctx)
}

func (s *Scheduler) runScoreCycle(ctx context.Context) {
	if !s.scoreMu.TryLock() {
		s.logger.Warn("score cycle skipped: previous cycle still running")
		return
	}
	defer s.scoreMu.Unlock()

	updated, err := s.scores.RecalculatePending(ctx)
	if err != nil {
		s.logger.Error("score cycle failed", "error", err)
		return
	}
	if updated > 0 {
		s.logger.Info("score cycle completed", "updated", updated)
	}
}

func (s *Scheduler) runEmbeddingCycle(ctx context.Context) {
	if !s.embedMu.TryLock() {
		s.logger.Warn("embedding cycle skipped: previous cycle still running")
		return
	}
	defer s.embedMu.Unlock()

	stats, err := s.embeddings.ProcessPendingBatch(ctx)
	if err != nil {
		s.logger.Error("embedding cycle failed", "error", err)
		return
	}
	if stats.Requested > 0 {
		s.logger.Info("embedding cycle completed",
			"requested", stats.Requested,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
		)
	}
}

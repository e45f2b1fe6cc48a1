package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

// Target はスコア再計算の対象1件分
type Target struct {
	StoreID  uuid.UUID
	Level    mo.Option[store.HonbobLevel]
	Category mo.Option[string]
	Menus    []store.Menu
	Seats    []store.SeatType
}

// Repository はスコアバッチのデータアクセスを定義する
// テスト時のモック用に消費者側で定義
type Repository interface {
	// ListScoreTargets は再計算対象を取得する
	// pendingOnly の場合は internal_score が NULL か score_update_flag が立っている店舗のみ
	ListScoreTargets(ctx context.Context, pendingOnly bool) ([]*Target, error)

	// UpdateInternalScores は計算済みスコアをまとめて書き戻す
	// 書き込みは1トランザクションで行い、score_update_flag も同時に落とす
	UpdateInternalScores(ctx context.Context, scores map[uuid.UUID]float64) (int, error)
}

// Service はスコアの一括再計算を実行する
type Service struct {
	repo       Repository
	calculator *Calculator
	logger     *slog.Logger
}

// NewService は新しいスコアサービスを作成する
func NewService(repo Repository, calculator *Calculator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		calculator: calculator,
		logger:     logger,
	}
}

// RecalculateAll は全店舗のスコアを無条件に再計算し、更新件数を返す
func (s *Service) RecalculateAll(ctx context.Context) (int, error) {
	return s.recalculate(ctx, false)
}

// RecalculatePending は未計算または変更フラグ付きの店舗のみ再計算し、更新件数を返す
// 書き戻しにより score_update_flag は自動的にクリアされる
func (s *Service) RecalculatePending(ctx context.Context) (int, error) {
	return s.recalculate(ctx, true)
}

func (s *Service) recalculate(ctx context.Context, pendingOnly bool) (int, error) {
	targets, err := s.repo.ListScoreTargets(ctx, pendingOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to list score targets: %w", err)
	}
	if len(targets) == 0 {
		return 0, nil
	}

	// 1件の計算失敗でバッチ全体を止めない。失敗はログに残してスキップする
	scores := make(map[uuid.UUID]float64, len(targets))
	for _, target := range targets {
		score, err := s.calculateOne(target)
		if err != nil {
			s.logger.Error("score calculation failed",
				"store_id", target.StoreID,
				"error", err,
			)
			continue
		}
		scores[target.StoreID] = score
	}

	if len(scores) == 0 {
		return 0, nil
	}

	updated, err := s.repo.UpdateInternalScores(ctx, scores)
	if err != nil {
		return 0, fmt.Errorf("failed to update internal scores: %w", err)
	}

	s.logger.Info("internal scores recalculated",
		"pending_only", pendingOnly,
		"targets", len(targets),
		"updated", updated,
	)
	return updated, nil
}

// calculateOne は panic も1件分の失敗として回収する
func (s *Service) calculateOne(target *Target) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score calculation panicked: %v", r)
		}
	}()

	score = s.calculator.Calculate(Input{
		Level:    target.Level,
		Category: target.Category,
		Menus:    target.Menus,
		Seats:    target.Seats,
	})
	return score, nil
}

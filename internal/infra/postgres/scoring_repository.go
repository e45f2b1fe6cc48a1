package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/honbob-navi/internal/core/scoring"
)

// ScoringRepository は scoring.Repository を実装する PostgreSQL リポジトリ
type ScoringRepository struct {
	pool *pgxpool.Pool
}

// NewScoringRepository は新しい ScoringRepository を作成する
func NewScoringRepository(pool *pgxpool.Pool) *ScoringRepository {
	return &ScoringRepository{pool: pool}
}

var _ scoring.Repository = (*ScoringRepository)(nil)

// ListScoreTargets は再計算対象の店舗を属性ごと取得する
// pendingOnly の場合は未計算（internal_score IS NULL）か変更フラグ付きのみ
func (r *ScoringRepository) ListScoreTargets(ctx context.Context, pendingOnly bool) ([]*scoring.Target, error) {
	sql := "SELECT id, honbob_level, primary_category FROM stores"
	if pendingOnly {
		sql += " WHERE internal_score IS NULL OR score_update_flag"
	}
	sql += " ORDER BY id"

	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list score targets: %w", err)
	}
	defer rows.Close()

	targets := make([]*scoring.Target, 0)
	for rows.Next() {
		var (
			id       pgtype.UUID
			level    pgtype.Int4
			category pgtype.Text
		)
		if err := rows.Scan(&id, &level, &category); err != nil {
			return nil, fmt.Errorf("failed to scan score target: %w", err)
		}
		targets = append(targets, &scoring.Target{
			StoreID:  PgtypeToUUID(id),
			Level:    levelToOption(level),
			Category: PgtextToOption(category),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score targets: %w", err)
	}

	if len(targets) == 0 {
		return targets, nil
	}

	// 子テーブルは店舗ごとではなくID列で一括取得する
	ids := make([]uuid.UUID, len(targets))
	for i, t := range targets {
		ids[i] = t.StoreID
	}
	menus, err := loadMenusByStoreIDs(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	seats, err := loadSeatTypesByStoreIDs(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		t.Menus = menus[t.StoreID]
		t.Seats = seats[t.StoreID]
	}

	return targets, nil
}

// UpdateInternalScores は計算済みスコアを1トランザクションでまとめて書き戻す
// 書き込みにより score_update_flag も同時にクリアされる
func (r *ScoringRepository) UpdateInternalScores(ctx context.Context, scores map[uuid.UUID]float64) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // コミット後の Rollback は no-op

	batch := &pgx.Batch{}
	for id, score := range scores {
		batch.Queue(`
			UPDATE stores
			SET internal_score = $2, score_update_flag = FALSE, updated_at = now()
			WHERE id = $1
		`, UUIDToPgtype(id), score)
	}

	results := tx.SendBatch(ctx, batch)
	updated := 0
	for range scores {
		tag, err := results.Exec()
		if err != nil {
			results.Close() //nolint:errcheck
			return 0, fmt.Errorf("failed to update internal score: %w", err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit score updates: %w", err)
	}

	return updated, nil
}

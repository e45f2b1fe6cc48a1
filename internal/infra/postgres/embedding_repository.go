package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/honbob-navi/internal/core/embedding"
	"github.com/jinford/honbob-navi/internal/core/store"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"
)

// EmbeddingRepository は embedding.Repository を実装する PostgreSQL リポジトリ
type EmbeddingRepository struct {
	pool *pgxpool.Pool
}

// NewEmbeddingRepository は新しい EmbeddingRepository を作成する
func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

var _ embedding.Repository = (*EmbeddingRepository)(nil)

const profileColumns = "id, name, description, honbob_level, primary_category, secondary_category, address"

// GetStoreProfile は同期生成用に単一店舗のプロフィールを取得する
func (r *EmbeddingRepository) GetStoreProfile(ctx context.Context, storeID uuid.UUID) (mo.Option[*embedding.StoreProfile], error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+profileColumns+" FROM stores WHERE id = $1",
		UUIDToPgtype(storeID),
	)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*embedding.StoreProfile](), nil
		}
		return mo.None[*embedding.StoreProfile](), err
	}

	if err := r.attachChildren(ctx, []*embedding.StoreProfile{profile}); err != nil {
		return mo.None[*embedding.StoreProfile](), err
	}
	return mo.Some(profile), nil
}

// ListEmbeddingTargets はステータスが PENDING / FAILED（または埋め込み行が未作成）の
// 店舗プロフィールを最大 limit 件取得する
func (r *EmbeddingRepository) ListEmbeddingTargets(ctx context.Context, limit int) ([]*embedding.StoreProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, s.description, s.honbob_level,
		       s.primary_category, s.secondary_category, s.address
		FROM stores s
		LEFT JOIN store_embeddings e ON e.store_id = s.id
		WHERE e.store_id IS NULL OR e.status IN ('PENDING', 'FAILED')
		ORDER BY s.created_at, s.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding targets: %w", err)
	}
	defer rows.Close()

	profiles := make([]*embedding.StoreProfile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedding targets: %w", err)
	}

	if len(profiles) == 0 {
		return profiles, nil
	}
	if err := r.attachChildren(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// SaveEmbedding はベクトルを保存してステータスを COMPLETED にする
// ベクトルとステータスは単一の upsert で同時に遷移する（部分書き込みの禁止）
func (r *EmbeddingRepository) SaveEmbedding(ctx context.Context, storeID uuid.UUID, vector []float32) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO store_embeddings (store_id, embedding, status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (store_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, status = EXCLUDED.status, updated_at = now()
	`, UUIDToPgtype(storeID), pgvector.NewVector(vector), string(store.EmbeddingStatusCompleted))
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// MarkEmbeddingFailed はステータスを FAILED にする（既存ベクトルは保持する）
func (r *EmbeddingRepository) MarkEmbeddingFailed(ctx context.Context, storeID uuid.UUID) error {
	return r.markStatus(ctx, storeID, store.EmbeddingStatusFailed)
}

// MarkEmbeddingPending はステータスを PENDING にする（次のバッチサイクルで再生成される）
func (r *EmbeddingRepository) MarkEmbeddingPending(ctx context.Context, storeID uuid.UUID) error {
	return r.markStatus(ctx, storeID, store.EmbeddingStatusPending)
}

func (r *EmbeddingRepository) markStatus(ctx context.Context, storeID uuid.UUID, status store.EmbeddingStatus) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO store_embeddings (store_id, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (store_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`, UUIDToPgtype(storeID), string(status))
	if err != nil {
		return fmt.Errorf("failed to mark embedding status %s: %w", status, err)
	}
	return nil
}

func scanProfile(row rowScanner) (*embedding.StoreProfile, error) {
	var (
		id                pgtype.UUID
		name              string
		description       pgtype.Text
		honbobLevel       pgtype.Int4
		primaryCategory   pgtype.Text
		secondaryCategory pgtype.Text
		address           pgtype.Text
	)
	if err := row.Scan(&id, &name, &description, &honbobLevel, &primaryCategory, &secondaryCategory, &address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan store profile: %w", err)
	}

	return &embedding.StoreProfile{
		StoreID:           PgtypeToUUID(id),
		Name:              name,
		Description:       PgtextToOption(description),
		Level:             levelToOption(honbobLevel),
		PrimaryCategory:   PgtextToOption(primaryCategory),
		SecondaryCategory: PgtextToOption(secondaryCategory),
		Address:           PgtextToOption(address),
	}, nil
}

func (r *EmbeddingRepository) attachChildren(ctx context.Context, profiles []*embedding.StoreProfile) error {
	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.StoreID
	}
	menus, err := loadMenusByStoreIDs(ctx, r.pool, ids)
	if err != nil {
		return err
	}
	seats, err := loadSeatTypesByStoreIDs(ctx, r.pool, ids)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		p.Menus = menus[p.StoreID]
		p.Seats = seats[p.StoreID]
	}
	return nil
}

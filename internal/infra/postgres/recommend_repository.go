package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/honbob-navi/internal/core/recommend"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

// RecommendRepository は recommend.Repository を実装する PostgreSQL リポジトリ
type RecommendRepository struct {
	pool *pgxpool.Pool
}

// NewRecommendRepository は新しい RecommendRepository を作成する
func NewRecommendRepository(pool *pgxpool.Pool) *RecommendRepository {
	return &RecommendRepository{pool: pool}
}

var _ recommend.Repository = (*RecommendRepository)(nil)

// GetStoreByID は基準店舗を取得する
func (r *RecommendRepository) GetStoreByID(ctx context.Context, id uuid.UUID) (mo.Option[*store.Store], error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, address, latitude, longitude,
		       honbob_level, internal_score, score_update_flag,
		       primary_category, secondary_category, created_at, updated_at
		FROM stores
		WHERE id = $1
	`, UUIDToPgtype(id))

	st, err := scanStore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*store.Store](), nil
		}
		return mo.None[*store.Store](), fmt.Errorf("failed to get store: %w", err)
	}
	return mo.Some(st), nil
}

// ListCandidateIDs は基準店舗の半径内の候補店舗IDを返す
// 候補は基準と同等以下のレベル（=入りやすい）に限定し、基準自身は除外する
// 基準のレベルが未設定の場合はレベル条件を課さない
func (r *RecommendRepository) ListCandidateIDs(ctx context.Context, ref *store.Store, radiusMeters float64) ([]uuid.UUID, error) {
	qa := &queryArgs{}
	latArg := qa.add(ref.Location.Latitude)
	lonArg := qa.add(ref.Location.Longitude)
	distExpr := haversineSQL(latArg, lonArg)

	sql := fmt.Sprintf(
		"SELECT s.id FROM stores s WHERE s.id <> %s AND %s <= %s",
		qa.add(UUIDToPgtype(ref.ID)), distExpr, qa.add(radiusMeters),
	)
	if level, ok := ref.HonbobLevel.Get(); ok {
		sql += fmt.Sprintf(" AND s.honbob_level IS NOT NULL AND s.honbob_level <= %s", qa.add(int32(level)))
	}

	rows, err := r.pool.Query(ctx, sql, qa.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate stores: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan candidate id: %w", err)
		}
		ids = append(ids, PgtypeToUUID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidate ids: %w", err)
	}

	return ids, nil
}

// RankByEmbedding は候補集合をコサイン距離の昇順で並べて上位を返す
// 基準・候補の両方の埋め込みが COMPLETED の行だけが対象になる
func (r *RecommendRepository) RankByEmbedding(ctx context.Context, refID uuid.UUID, candidateIDs []uuid.UUID, limit int) ([]*recommend.SimilarStore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, img.url, s.address, s.latitude, s.longitude, s.honbob_level,
		       (e.embedding <=> ref.embedding) AS cosine_distance
		FROM store_embeddings ref
		JOIN store_embeddings e ON e.store_id = ANY($2::uuid[])
		JOIN stores s ON s.id = e.store_id
		LEFT JOIN LATERAL (
			SELECT url FROM store_images
			WHERE store_id = s.id
			ORDER BY is_main DESC, ordinal ASC, id ASC
			LIMIT 1
		) img ON TRUE
		WHERE ref.store_id = $1
		  AND ref.status = 'COMPLETED' AND ref.embedding IS NOT NULL
		  AND e.status = 'COMPLETED' AND e.embedding IS NOT NULL
		ORDER BY e.embedding <=> ref.embedding ASC, s.id ASC
		LIMIT $3
	`, UUIDToPgtype(refID), uuidStrings(candidateIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates by embedding: %w", err)
	}
	defer rows.Close()

	results := make([]*recommend.SimilarStore, 0, limit)
	for rows.Next() {
		var (
			id             pgtype.UUID
			name           string
			imageURL       pgtype.Text
			address        pgtype.Text
			latitude       float64
			longitude      float64
			honbobLevel    pgtype.Int4
			cosineDistance float64
		)
		if err := rows.Scan(&id, &name, &imageURL, &address, &latitude, &longitude, &honbobLevel, &cosineDistance); err != nil {
			return nil, fmt.Errorf("failed to scan similar store: %w", err)
		}
		results = append(results, &recommend.SimilarStore{
			StoreID:      PgtypeToUUID(id),
			Name:         name,
			MainImageURL: PgtextToOption(imageURL),
			Address:      PgtextToOption(address),
			Location: store.Coordinate{
				Latitude:  latitude,
				Longitude: longitude,
			},
			HonbobLevel:    levelToOption(honbobLevel),
			CosineDistance: cosineDistance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate similar stores: %w", err)
	}

	return results, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/honbob-navi/internal/core/search"
	"github.com/jinford/honbob-navi/internal/core/store"
)

// SearchRepository は search.Repository を実装する PostgreSQL リポジトリ
type SearchRepository struct {
	pool *pgxpool.Pool
}

// NewSearchRepository は新しい SearchRepository を作成する
func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

var _ search.Repository = (*SearchRepository)(nil)

// SearchStoreHits はフェーズ1のクエリを実行する
// 絞り込み条件の組み合わせが実行時に決まるため、SQL をここで動的に組み立てる
func (r *SearchRepository) SearchStoreHits(ctx context.Context, q search.HitQuery) ([]*search.Hit, error) {
	qa := &queryArgs{}
	scope := q.Filter.GeoScope()

	latArg := qa.add(scope.Center.Latitude)
	lonArg := qa.add(scope.Center.Longitude)
	distExpr := haversineSQL(latArg, lonArg)

	conds := make([]string, 0, 6)

	// 位置条件: BoundingBox があれば範囲内、なければ半径内
	switch scope.Mode {
	case search.GeoModeBoundingBox:
		conds = append(conds, fmt.Sprintf(
			"s.latitude BETWEEN %s AND %s AND s.longitude BETWEEN %s AND %s",
			qa.add(scope.Box.SouthWest.Latitude),
			qa.add(scope.Box.NorthEast.Latitude),
			qa.add(scope.Box.SouthWest.Longitude),
			qa.add(scope.Box.NorthEast.Longitude),
		))
	default:
		conds = append(conds, fmt.Sprintf("%s <= %s", distExpr, qa.add(scope.RadiusMeters)))
	}

	if len(q.Filter.Levels) > 0 {
		levels := make([]int32, len(q.Filter.Levels))
		for i, l := range q.Filter.Levels {
			levels[i] = int32(l)
		}
		conds = append(conds, fmt.Sprintf("s.honbob_level = ANY(%s)", qa.add(levels)))
	}

	if len(q.Filter.Categories) > 0 {
		categoriesArg := qa.add(q.Filter.Categories)
		conds = append(conds, fmt.Sprintf(
			"(s.primary_category = ANY(%[1]s) OR s.secondary_category = ANY(%[1]s))",
			categoriesArg,
		))
	}

	joins := make([]string, 0, 2)
	if q.Filter.RequiresMenuJoin() {
		joins = append(joins, "JOIN menus m ON m.store_id = s.id")
		if minPrice, ok := q.Filter.MinPrice.Get(); ok {
			conds = append(conds, fmt.Sprintf("m.price >= %s", qa.add(minPrice)))
		}
		if maxPrice, ok := q.Filter.MaxPrice.Get(); ok {
			conds = append(conds, fmt.Sprintf("m.price <= %s", qa.add(maxPrice)))
		}
	}
	if q.Filter.RequiresSeatJoin() {
		joins = append(joins, "JOIN seat_options so ON so.store_id = s.id")
		seatTypes := make([]string, len(q.Filter.SeatTypes))
		for i, t := range q.Filter.SeatTypes {
			seatTypes[i] = string(t)
		}
		conds = append(conds, fmt.Sprintf("so.seat_type = ANY(%s)", qa.add(seatTypes)))
	}

	inner := fmt.Sprintf(
		"SELECT s.id AS id, %s AS distance, s.internal_score AS internal_score FROM stores s %s WHERE %s",
		distExpr,
		strings.Join(joins, " "),
		strings.Join(conds, " AND "),
	)
	// 1対多の結合は親行を複製するため、結合がある場合は店舗IDで集約して重複を排除する
	if q.Dedupe {
		inner += " GROUP BY s.id, s.latitude, s.longitude, s.internal_score"
	}

	// 並び替えキー: 距離順は距離そのもの、スコア順は総合スコア式
	// 総合スコア式の定義は search.RankExpression の一箇所のみ（プロセス内評価と共有）
	var keyExpr, keyOrder, keysetOp string
	switch q.Sort {
	case search.SortByScore:
		keyExpr = q.Rank.SQL("t.internal_score", "t.distance")
		keyOrder = "DESC"
		keysetOp = "<"
	default:
		keyExpr = "t.distance"
		keyOrder = "ASC"
		keysetOp = ">"
	}

	outerConds := ""
	if cursor, ok := q.Cursor.Get(); ok {
		keyArg := qa.add(cursor.Key)
		idArg := qa.add(UUIDToPgtype(cursor.ID))
		// タイブレークは常に店舗ID昇順。並び替えキーが同値でも全順序が保たれる
		outerConds = fmt.Sprintf(
			" WHERE (%[1]s %[2]s %[3]s OR (%[1]s = %[3]s AND t.id > %[4]s))",
			keyExpr, keysetOp, keyArg, idArg,
		)
	}

	sql := fmt.Sprintf(
		"SELECT t.id, t.distance, %s AS rank_key FROM (%s) t%s ORDER BY rank_key %s, t.id ASC LIMIT %s",
		keyExpr, inner, outerConds, keyOrder, qa.add(q.Limit),
	)

	rows, err := r.pool.Query(ctx, sql, qa.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute store hit query: %w", err)
	}
	defer rows.Close()

	hits := make([]*search.Hit, 0, q.Limit)
	for rows.Next() {
		var id pgtype.UUID
		var distance, rankKey float64
		if err := rows.Scan(&id, &distance, &rankKey); err != nil {
			return nil, fmt.Errorf("failed to scan store hit: %w", err)
		}
		hits = append(hits, &search.Hit{
			StoreID:        PgtypeToUUID(id),
			DistanceMeters: distance,
			RankKey:        rankKey,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate store hits: %w", err)
	}

	return hits, nil
}

// GetStoresByIDs は店舗本体をID列で一括取得する
func (r *SearchRepository) GetStoresByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*store.Store, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, address, latitude, longitude,
		       honbob_level, internal_score, score_update_flag,
		       primary_category, secondary_category, created_at, updated_at
		FROM stores
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get stores by ids: %w", err)
	}
	defer rows.Close()

	stores := make(map[uuid.UUID]*store.Store, len(ids))
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stores: %w", err)
	}

	return stores, nil
}

// GetMainImageURLs はメイン画像をID列で一括取得する
// is_main が立っている画像を優先し、なければ表示順の先頭を使う
func (r *SearchRepository) GetMainImageURLs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (store_id) store_id, url
		FROM store_images
		WHERE store_id = ANY($1::uuid[])
		ORDER BY store_id, is_main DESC, ordinal ASC, id ASC
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get main images: %w", err)
	}
	defer rows.Close()

	images := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var storeID pgtype.UUID
		var url string
		if err := rows.Scan(&storeID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan main image: %w", err)
		}
		images[PgtypeToUUID(storeID)] = url
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate main images: %w", err)
	}

	return images, nil
}

// GetRepresentativeMenus は代表メニューをID列で一括取得する
// recommend を優先し、次に最安値、最後にIDで安定的にタイブレークする
func (r *SearchRepository) GetRepresentativeMenus(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]search.MenuSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (store_id) store_id, name, price
		FROM menus
		WHERE store_id = ANY($1::uuid[])
		ORDER BY store_id, recommend DESC, price ASC, id ASC
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get representative menus: %w", err)
	}
	defer rows.Close()

	menus := make(map[uuid.UUID]search.MenuSummary, len(ids))
	for rows.Next() {
		var storeID pgtype.UUID
		var name string
		var price int32
		if err := rows.Scan(&storeID, &name, &price); err != nil {
			return nil, fmt.Errorf("failed to scan representative menu: %w", err)
		}
		menus[PgtypeToUUID(storeID)] = search.MenuSummary{Name: name, Price: int(price)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate representative menus: %w", err)
	}

	return menus, nil
}

// GetSeatTypesByStoreIDs は座席種別の集合をID列で一括取得する
func (r *SearchRepository) GetSeatTypesByStoreIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]store.SeatType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT store_id, seat_type
		FROM seat_options
		WHERE store_id = ANY($1::uuid[])
		ORDER BY store_id, seat_type
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get seat types: %w", err)
	}
	defer rows.Close()

	seats := make(map[uuid.UUID][]store.SeatType, len(ids))
	for rows.Next() {
		var storeID pgtype.UUID
		var seatType string
		if err := rows.Scan(&storeID, &seatType); err != nil {
			return nil, fmt.Errorf("failed to scan seat type: %w", err)
		}
		id := PgtypeToUUID(storeID)
		seats[id] = append(seats[id], store.SeatType(seatType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seat types: %w", err)
	}

	return seats, nil
}

// GetSavedStoreIDs は利用者が保存済みの店舗IDをID列で一括取得する
func (r *SearchRepository) GetSavedStoreIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT store_id
		FROM saved_stores
		WHERE user_id = $1 AND store_id = ANY($2::uuid[])
	`, UUIDToPgtype(userID), uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get saved stores: %w", err)
	}
	defer rows.Close()

	saved := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var storeID pgtype.UUID
		if err := rows.Scan(&storeID); err != nil {
			return nil, fmt.Errorf("failed to scan saved store: %w", err)
		}
		saved[PgtypeToUUID(storeID)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate saved stores: %w", err)
	}

	return saved, nil
}

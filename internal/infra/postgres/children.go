package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/honbob-navi/internal/core/store"
)

// loadMenusByStoreIDs はメニューをID列で一括取得して店舗ごとにまとめる
func loadMenusByStoreIDs(ctx context.Context, pool *pgxpool.Pool, ids []uuid.UUID) (map[uuid.UUID][]store.Menu, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, store_id, name, price, recommend
		FROM menus
		WHERE store_id = ANY($1::uuid[])
		ORDER BY store_id, id
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load menus: %w", err)
	}
	defer rows.Close()

	menus := make(map[uuid.UUID][]store.Menu, len(ids))
	for rows.Next() {
		var (
			id        pgtype.UUID
			storeID   pgtype.UUID
			name      string
			price     int32
			recommend bool
		)
		if err := rows.Scan(&id, &storeID, &name, &price, &recommend); err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		sid := PgtypeToUUID(storeID)
		menus[sid] = append(menus[sid], store.Menu{
			ID:        PgtypeToUUID(id),
			StoreID:   sid,
			Name:      name,
			Price:     int(price),
			Recommend: recommend,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menus: %w", err)
	}

	return menus, nil
}

// loadSeatTypesByStoreIDs は座席種別をID列で一括取得して店舗ごとにまとめる
func loadSeatTypesByStoreIDs(ctx context.Context, pool *pgxpool.Pool, ids []uuid.UUID) (map[uuid.UUID][]store.SeatType, error) {
	rows, err := pool.Query(ctx, `
		SELECT store_id, seat_type
		FROM seat_options
		WHERE store_id = ANY($1::uuid[])
		ORDER BY store_id, seat_type
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load seat options: %w", err)
	}
	defer rows.Close()

	seats := make(map[uuid.UUID][]store.SeatType, len(ids))
	for rows.Next() {
		var storeID pgtype.UUID
		var seatType string
		if err := rows.Scan(&storeID, &seatType); err != nil {
			return nil, fmt.Errorf("failed to scan seat option: %w", err)
		}
		sid := PgtypeToUUID(storeID)
		seats[sid] = append(seats[sid], store.SeatType(seatType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seat options: %w", err)
	}

	return seats, nil
}

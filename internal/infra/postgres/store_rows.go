package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStore は stores の1行を store.Store に変換する
// SELECT の列順は GetStoresByIDs / GetStoreByID と揃えること
func scanStore(row rowScanner) (*store.Store, error) {
	var (
		id                pgtype.UUID
		name              string
		description       pgtype.Text
		address           pgtype.Text
		latitude          float64
		longitude         float64
		honbobLevel       pgtype.Int4
		internalScore     pgtype.Float8
		scoreUpdateFlag   bool
		primaryCategory   pgtype.Text
		secondaryCategory pgtype.Text
		createdAt         pgtype.Timestamp
		updatedAt         pgtype.Timestamp
	)

	if err := row.Scan(
		&id, &name, &description, &address, &latitude, &longitude,
		&honbobLevel, &internalScore, &scoreUpdateFlag,
		&primaryCategory, &secondaryCategory, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan store: %w", err)
	}

	st := &store.Store{
		ID:          PgtypeToUUID(id),
		Name:        name,
		Description: PgtextToOption(description),
		Address:     PgtextToOption(address),
		Location: store.Coordinate{
			Latitude:  latitude,
			Longitude: longitude,
		},
		InternalScore:     PgfloatToOption(internalScore),
		ScoreUpdateFlag:   scoreUpdateFlag,
		PrimaryCategory:   PgtextToOption(primaryCategory),
		SecondaryCategory: PgtextToOption(secondaryCategory),
		CreatedAt:         createdAt.Time,
		UpdatedAt:         updatedAt.Time,
	}
	if honbobLevel.Valid {
		st.HonbobLevel = mo.Some(store.HonbobLevel(honbobLevel.Int32))
	}
	return st, nil
}

// levelToOption は honbob_level 列の値を変換する
func levelToOption(level pgtype.Int4) mo.Option[store.HonbobLevel] {
	if !level.Valid {
		return mo.None[store.HonbobLevel]()
	}
	return mo.Some(store.HonbobLevel(level.Int32))
}

package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// PgtextToOption converts pgtype.Text to mo.Option[string]
func PgtextToOption(t pgtype.Text) mo.Option[string] {
	if !t.Valid {
		return mo.None[string]()
	}
	return mo.Some(t.String)
}

// OptionToPgtext converts mo.Option[string] to pgtype.Text
func OptionToPgtext(o mo.Option[string]) pgtype.Text {
	s, ok := o.Get()
	if !ok {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// PgfloatToOption converts pgtype.Float8 to mo.Option[float64]
func PgfloatToOption(f pgtype.Float8) mo.Option[float64] {
	if !f.Valid {
		return mo.None[float64]()
	}
	return mo.Some(f.Float64)
}

// PgintToOption converts pgtype.Int4 to mo.Option[int]
func PgintToOption(i pgtype.Int4) mo.Option[int] {
	if !i.Valid {
		return mo.None[int]()
	}
	return mo.Some(int(i.Int32))
}

// uuidStrings は uuid 配列を ANY($n::uuid[]) に渡せる文字列配列へ変換する
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

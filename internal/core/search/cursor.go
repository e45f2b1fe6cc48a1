package search

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Cursor はキーセットページネーションのカーソル
// Key はページ末尾行の並び替えキー（距離またはスコア）、ID は同値の場合のタイブレーク
// タイブレークは常に店舗ID昇順で、並び替えキーが同値でも全順序が保証される
type Cursor struct {
	Key float64
	ID  uuid.UUID
}

const cursorDelimiter = "|"

// EncodeCursor はカーソルを不透明なトークンに変換する
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatFloat(c.Key, 'f', -1, 64) + cursorDelimiter + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor はトークンをカーソルに復元する
// 不正なトークンはエラーにせず None を返す（先頭ページからやり直す）
// 壊れたカーソルでリクエスト全体を失敗させないための仕様
func DecodeCursor(token string) mo.Option[Cursor] {
	if token == "" {
		return mo.None[Cursor]()
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return mo.None[Cursor]()
	}

	parts := strings.SplitN(string(raw), cursorDelimiter, 2)
	if len(parts) != 2 {
		return mo.None[Cursor]()
	}

	key, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return mo.None[Cursor]()
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return mo.None[Cursor]()
	}

	return mo.Some(Cursor{Key: key, ID: id})
}

package search

import (
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

// DefaultRadiusMeters は中心点検索のデフォルト半径
const DefaultRadiusMeters = 5000.0

// GeoMode は位置条件の種類
type GeoMode int

const (
	// GeoModeRadius は中心点からの半径内検索
	GeoModeRadius GeoMode = iota
	// GeoModeBoundingBox は地図表示範囲内検索
	GeoModeBoundingBox
)

// GeoScope は位置条件を表す（SQL への変換はインフラ層が行う）
type GeoScope struct {
	Mode         GeoMode
	Center       store.Coordinate
	RadiusMeters float64
	Box          store.BoundingBox
}

// Filter は店舗検索の絞り込み条件
type Filter struct {
	// Center は検索の基準点。距離計算には常にこの座標を使う
	Center store.Coordinate
	// Box は地図表示範囲。両方の角が揃っているときのみ Some になる
	Box mo.Option[store.BoundingBox]
	// RadiusMeters が 0 以下の場合はデフォルト半径を使う
	RadiusMeters float64
	Levels       []store.HonbobLevel
	Categories   []string
	MinPrice     mo.Option[int]
	MaxPrice     mo.Option[int]
	SeatTypes    []store.SeatType
}

// GeoScope は位置条件を解決する。BoundingBox が揃っていれば半径より優先する
func (f Filter) GeoScope() GeoScope {
	if box, ok := f.Box.Get(); ok {
		return GeoScope{
			Mode:   GeoModeBoundingBox,
			Center: f.Center,
			Box:    box,
		}
	}
	radius := f.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	return GeoScope{
		Mode:         GeoModeRadius,
		Center:       f.Center,
		RadiusMeters: radius,
	}
}

// RequiresMenuJoin は価格フィルタによりメニューテーブルの結合が必要かを返す
func (f Filter) RequiresMenuJoin() bool {
	return f.MinPrice.IsPresent() || f.MaxPrice.IsPresent()
}

// RequiresSeatJoin は座席フィルタにより座席テーブルの結合が必要かを返す
func (f Filter) RequiresSeatJoin() bool {
	return len(f.SeatTypes) > 0
}

// RequiresChildJoin は子テーブル結合の有無を返す
// 1対多の結合は親行を複製するため、実行側は結合時に店舗IDの重複排除が必要になる
func (f Filter) RequiresChildJoin() bool {
	return f.RequiresMenuJoin() || f.RequiresSeatJoin()
}

// ParseLevels は外部表現のレベル集合を内部の序数集合に変換する
// いずれかが不正なら store.ErrInvalidLevelValue を返す
func ParseLevels(values []string) ([]store.HonbobLevel, error) {
	if len(values) == 0 {
		return nil, nil
	}
	levels := make([]store.HonbobLevel, 0, len(values))
	for _, v := range values {
		level, err := store.ParseHonbobLevel(v)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

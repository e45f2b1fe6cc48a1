package search

import (
	"fmt"
	"math"
	"strconv"

	"github.com/samber/mo"
)

// Sort は検索結果の並び順
type Sort string

const (
	// SortByDistance は距離昇順
	SortByDistance Sort = "distance"
	// SortByScore は総合スコア降順
	SortByScore Sort = "score"
)

// ParseSort は並び順の外部表現を解決する。未知の値は距離順に落とす
func ParseSort(value string) Sort {
	if value == string(SortByScore) {
		return SortByScore
	}
	return SortByDistance
}

// RankExpression は総合スコアの定義
//
// compositeScore = normalizedInternal * InternalWeight + normalizedDistance * DistanceWeight
//
// 距離は MaxRadiusMeters を上限として 0〜100 に正規化し、内部スコアと同じ尺度に揃える。
// この式はクエリエンジン（ORDER BY）とプロセス内の両方で評価されるため、
// 定義は本構造体の一箇所だけに置き、SQL() と Eval() が乖離しないようにしている。
type RankExpression struct {
	InternalWeight       float64
	DistanceWeight       float64
	MaxRadiusMeters      float64
	DefaultInternalScore float64
}

// DefaultRankExpression はデフォルトの重み付け（距離を優遇する）を返す
func DefaultRankExpression() RankExpression {
	return RankExpression{
		InternalWeight:       0.3,
		DistanceWeight:       0.7,
		MaxRadiusMeters:      DefaultRadiusMeters,
		DefaultInternalScore: 50,
	}
}

// Eval は総合スコアをプロセス内で計算する
func (e RankExpression) Eval(internalScore mo.Option[float64], distanceMeters float64) float64 {
	internal := e.DefaultInternalScore
	if s, ok := internalScore.Get(); ok {
		internal = s
	}
	normalizedDistance := (e.MaxRadiusMeters - distanceMeters) / e.MaxRadiusMeters * 100
	normalizedDistance = math.Max(normalizedDistance, 0)
	return internal*e.InternalWeight + normalizedDistance*e.DistanceWeight
}

// SQL は総合スコアを計算する SQL 式を生成する
// scoreExpr は内部スコア列（NULL 可）、distanceExpr は距離（メートル）の式
// 演算の順序と定数は Eval と完全に一致させること
func (e RankExpression) SQL(scoreExpr, distanceExpr string) string {
	return fmt.Sprintf(
		"(COALESCE(%s, %s) * %s + GREATEST((%s - %s) / %s * 100, 0) * %s)",
		scoreExpr,
		formatFloat(e.DefaultInternalScore),
		formatFloat(e.InternalWeight),
		formatFloat(e.MaxRadiusMeters),
		distanceExpr,
		formatFloat(e.MaxRadiusMeters),
		formatFloat(e.DistanceWeight),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WalkingSpeedMetersPerMinute は徒歩速度の仮定値
const WalkingSpeedMetersPerMinute = 80.0

// WalkingMinutes は距離から徒歩分数を見積もる（切り上げ）
func WalkingMinutes(distanceMeters float64) int {
	if distanceMeters <= 0 {
		return 0
	}
	return int(math.Ceil(distanceMeters / WalkingSpeedMetersPerMinute))
}

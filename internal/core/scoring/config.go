package scoring

import "github.com/jinford/honbob-navi/internal/core/store"

// CategoryGroup はカテゴリの혼밥適性グループ
type CategoryGroup int

const (
	// CategoryGroupHigh は一人客が多い業態（ファストフード・サラダ・カフェ）
	CategoryGroupHigh CategoryGroup = iota
	// CategoryGroupModerate は一般的な業態
	CategoryGroupModerate
	// CategoryGroupLow は複数人前提の業態
	CategoryGroupLow
)

// Config はヒューリスティックスコアの設定値
// 重みやしきい値は再デプロイなしで調整できるよう、計算時に参照する値オブジェクトとして注入する
type Config struct {
	// LevelScores はレベル→点数の変換表（最大30点）
	LevelScores map[store.HonbobLevel]float64
	// DefaultLevelScore はレベル未設定時の点数
	DefaultLevelScore float64

	// 価格スコア（最大25点）: BestPrice 以下で満点、WorstPrice 以上で0点、間は線形補間
	PriceMaxScore      float64
	BestPrice          int
	WorstPrice         int
	AssumedPriceNoMenu int

	// 座席スコア（最大25点）
	SeatBothScore    float64 // 1인석 と 바 테이블 の両方
	SeatEitherScore  float64 // どちらか一方
	SeatOtherScore   float64 // その他の座席のみ
	SeatMissingScore float64 // 座席情報なし

	// カテゴリスコア（最大20点）
	CategoryGroups       map[string]CategoryGroup
	CategoryGroupScores  map[CategoryGroup]float64
	DefaultCategoryScore float64

	// MaxTotal は合計の上限。各項目の最大の和と一致するため通常は到達しない安全弁
	MaxTotal float64
}

// DefaultConfig はデフォルトのスコア設定を返す
func DefaultConfig() Config {
	return Config{
		LevelScores: map[store.HonbobLevel]float64{
			store.HonbobLevelOne:   30,
			store.HonbobLevelTwo:   20,
			store.HonbobLevelThree: 10,
			store.HonbobLevelFour:  0,
		},
		DefaultLevelScore: 15,

		PriceMaxScore:      25,
		BestPrice:          8000,
		WorstPrice:         20000,
		AssumedPriceNoMenu: 15000,

		SeatBothScore:    25,
		SeatEitherScore:  15,
		SeatOtherScore:   5,
		SeatMissingScore: 0,

		CategoryGroups: map[string]CategoryGroup{
			"패스트푸드": CategoryGroupHigh,
			"샐러드":   CategoryGroupHigh,
			"카페":    CategoryGroupHigh,
			"한식":    CategoryGroupModerate,
			"일식":    CategoryGroupModerate,
			"분식":    CategoryGroupModerate,
			"아시안":   CategoryGroupModerate,
			"기타":    CategoryGroupModerate,
			"중식":    CategoryGroupLow,
			"멕시칸":   CategoryGroupLow,
			"양식":    CategoryGroupLow,
		},
		CategoryGroupScores: map[CategoryGroup]float64{
			CategoryGroupHigh:     20,
			CategoryGroupModerate: 12,
			CategoryGroupLow:      4,
		},
		DefaultCategoryScore: 10,

		MaxTotal: 100,
	}
}

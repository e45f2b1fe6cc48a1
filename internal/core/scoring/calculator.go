package scoring

import (
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

// Input はスコア計算に必要な店舗の属性
type Input struct {
	Level    mo.Option[store.HonbobLevel]
	Category mo.Option[string]
	Menus    []store.Menu
	Seats    []store.SeatType
}

// Calculator は店舗ごとの0〜100のヒューリスティックスコアを計算する
// 純粋関数として決定的に動作し、利用者の位置には依存しない
type Calculator struct {
	config Config
}

// NewCalculator は新しい Calculator を作成する
func NewCalculator(config Config) *Calculator {
	return &Calculator{config: config}
}

// Calculate は4つの独立したサブスコアの和を返す
// レベル30点 + 価格25点 + 座席25点 + カテゴリ20点 = 最大100点
func (c *Calculator) Calculate(input Input) float64 {
	total := c.levelScore(input.Level) +
		c.priceScore(input.Menus) +
		c.seatScore(input.Seats) +
		c.categoryScore(input.Category)

	if total > c.config.MaxTotal {
		total = c.config.MaxTotal
	}
	return total
}

func (c *Calculator) levelScore(level mo.Option[store.HonbobLevel]) float64 {
	l, ok := level.Get()
	if !ok {
		return c.config.DefaultLevelScore
	}
	score, ok := c.config.LevelScores[l]
	if !ok {
		return c.config.DefaultLevelScore
	}
	return score
}

// priceScore は代表価格を0〜25点に線形変換する
// 代表価格は「おすすめメニューの最安値 → 全メニューの最安値 → 仮定価格」の順で決める
func (c *Calculator) priceScore(menus []store.Menu) float64 {
	price := c.representativePrice(menus)

	if price <= c.config.BestPrice {
		return c.config.PriceMaxScore
	}
	if price >= c.config.WorstPrice {
		return 0
	}

	span := float64(c.config.WorstPrice - c.config.BestPrice)
	return c.config.PriceMaxScore * float64(c.config.WorstPrice-price) / span
}

func (c *Calculator) representativePrice(menus []store.Menu) int {
	if len(menus) == 0 {
		return c.config.AssumedPriceNoMenu
	}

	lowestRecommend := -1
	lowest := -1
	for _, m := range menus {
		if lowest < 0 || m.Price < lowest {
			lowest = m.Price
		}
		if m.Recommend && (lowestRecommend < 0 || m.Price < lowestRecommend) {
			lowestRecommend = m.Price
		}
	}

	if lowestRecommend >= 0 {
		return lowestRecommend
	}
	return lowest
}

func (c *Calculator) seatScore(seats []store.SeatType) float64 {
	if len(seats) == 0 {
		return c.config.SeatMissingScore
	}

	hasForOne := false
	hasBar := false
	for _, s := range seats {
		switch s {
		case store.SeatTypeForOne:
			hasForOne = true
		case store.SeatTypeBarTable:
			hasBar = true
		}
	}

	switch {
	case hasForOne && hasBar:
		return c.config.SeatBothScore
	case hasForOne || hasBar:
		return c.config.SeatEitherScore
	default:
		return c.config.SeatOtherScore
	}
}

func (c *Calculator) categoryScore(category mo.Option[string]) float64 {
	name, ok := category.Get()
	if !ok {
		return c.config.DefaultCategoryScore
	}
	group, ok := c.config.CategoryGroups[name]
	if !ok {
		return c.config.DefaultCategoryScore
	}
	return c.config.CategoryGroupScores[group]
}

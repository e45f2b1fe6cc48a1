package embedding

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/pkoukk/tiktoken-go"
	"github.com/samber/mo"
)

// DefaultMaxProfileTokens はプロフィールテキストのトークン上限
// text-embedding-3-small の入力上限(8191)より十分小さく抑える
const DefaultMaxProfileTokens = 4000

// StoreProfile は埋め込みテキストの材料になる店舗の属性一式
type StoreProfile struct {
	StoreID           uuid.UUID
	Name              string
	Description       mo.Option[string]
	Level             mo.Option[store.HonbobLevel]
	PrimaryCategory   mo.Option[string]
	SecondaryCategory mo.Option[string]
	Address           mo.Option[string]
	Menus             []store.Menu
	Seats             []store.SeatType
}

// TextBuilder は店舗プロフィールの正規化テキストを組み立てる
// 同じ入力からは常に同じテキストが得られる（埋め込みの再現性のため）
type TextBuilder struct {
	encoder   *tiktoken.Tiktoken
	maxTokens int
}

// NewTextBuilder は新しい TextBuilder を作成する
func NewTextBuilder(maxTokens int) (*TextBuilder, error) {
	// cl100k_base エンコーダを使用（text-embedding-3-small と互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxProfileTokens
	}
	return &TextBuilder{encoder: encoder, maxTokens: maxTokens}, nil
}

// Build は店舗プロフィールを1つのテキストに連結する
// 元の属性が欠けているセクションは丸ごと省略する
func (b *TextBuilder) Build(profile *StoreProfile) string {
	sections := make([]string, 0, 8)

	sections = append(sections, "상호명: "+profile.Name)

	if desc, ok := profile.Description.Get(); ok && desc != "" {
		sections = append(sections, "소개: "+desc)
	}

	if level, ok := profile.Level.Get(); ok {
		sections = append(sections, fmt.Sprintf("혼밥 레벨: %d (%s)", int(level), level.Label()))
	}

	if category := b.categoryLine(profile); category != "" {
		sections = append(sections, "카테고리: "+category)
	}

	if addr, ok := profile.Address.Get(); ok && addr != "" {
		sections = append(sections, "주소: "+addr)
	}

	if menus := b.menuLine(profile.Menus); menus != "" {
		sections = append(sections, "메뉴: "+menus)
	}

	if seats := b.seatLine(profile.Seats); seats != "" {
		sections = append(sections, "좌석: "+seats)
	}

	return b.truncate(strings.Join(sections, "\n"))
}

func (b *TextBuilder) categoryLine(profile *StoreProfile) string {
	parts := make([]string, 0, 2)
	if primary, ok := profile.PrimaryCategory.Get(); ok && primary != "" {
		parts = append(parts, primary)
	}
	if secondary, ok := profile.SecondaryCategory.Get(); ok && secondary != "" {
		parts = append(parts, secondary)
	}
	return strings.Join(parts, ", ")
}

// menuLine は「名前 (価格)」をカンマ区切りで連結する
func (b *TextBuilder) menuLine(menus []store.Menu) string {
	if len(menus) == 0 {
		return ""
	}
	parts := make([]string, 0, len(menus))
	for _, m := range menus {
		parts = append(parts, fmt.Sprintf("%s (%d원)", m.Name, m.Price))
	}
	return strings.Join(parts, ", ")
}

// seatLine は座席種別名を重複排除してカンマ区切りで連結する
func (b *TextBuilder) seatLine(seats []store.SeatType) string {
	if len(seats) == 0 {
		return ""
	}
	seen := make(map[store.SeatType]bool, len(seats))
	parts := make([]string, 0, len(seats))
	for _, s := range seats {
		if seen[s] {
			continue
		}
		seen[s] = true
		parts = append(parts, s.Label())
	}
	return strings.Join(parts, ", ")
}

// truncate はトークン上限を超えたテキストを上限まで切り詰める
func (b *TextBuilder) truncate(text string) string {
	tokens := b.encoder.Encode(text, nil, nil)
	if len(tokens) <= b.maxTokens {
		return text
	}
	return b.encoder.Decode(tokens[:b.maxTokens])
}

package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Coordinate は WGS84 の緯度経度を表す
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// BoundingBox は地図表示範囲の南西・北東の角を表す
type BoundingBox struct {
	SouthWest Coordinate
	NorthEast Coordinate
}

// Contains は座標が範囲内にあるかを判定する
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Latitude >= b.SouthWest.Latitude && c.Latitude <= b.NorthEast.Latitude &&
		c.Longitude >= b.SouthWest.Longitude && c.Longitude <= b.NorthEast.Longitude
}

// Store は店舗エンティティ
// InternalScore はオフラインのスコアバッチのみが更新する（初回計算まで None）
type Store struct {
	ID                uuid.UUID
	Name              string
	Description       mo.Option[string]
	Address           mo.Option[string]
	Location          Coordinate
	HonbobLevel       mo.Option[HonbobLevel]
	InternalScore     mo.Option[float64]
	ScoreUpdateFlag   bool
	PrimaryCategory   mo.Option[string]
	SecondaryCategory mo.Option[string]
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Menu は店舗に属するメニュー
// Recommend は看板メニューを示すフラグ
type Menu struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	Name      string
	Price     int
	Recommend bool
}

// SeatOption は店舗の座席構成（1店舗に複数持てる）
type SeatOption struct {
	ID       uuid.UUID
	StoreID  uuid.UUID
	SeatType SeatType
}

// StoreImage は店舗の表示画像
type StoreImage struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	URL     string
	IsMain  bool
	Ordinal int
}

// StoreEmbedding は店舗プロフィールの埋め込みベクトル（店舗と1対1）
// ベクトルとステータスは常に同時に書き込まれる
type StoreEmbedding struct {
	StoreID   uuid.UUID
	Vector    []float32
	Status    EmbeddingStatus
	UpdatedAt time.Time
}

// TrustedForSimilarity はベクトルを類似度計算に使ってよいかを返す
func (e *StoreEmbedding) TrustedForSimilarity() bool {
	return e.Status == EmbeddingStatusCompleted && len(e.Vector) > 0
}

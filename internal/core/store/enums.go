package store

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrStoreNotFound は店舗が存在しない場合のエラー
var ErrStoreNotFound = errors.New("store not found")

// ErrInvalidLevelValue は混雑レベルの外部表現が不正な場合のエラー
var ErrInvalidLevelValue = errors.New("invalid honbob level value")

// HonbobLevel は「一人で入りやすいか」を表す 1〜4 の序数（1 が最も入りやすい）
type HonbobLevel int

const (
	HonbobLevelOne   HonbobLevel = 1
	HonbobLevelTwo   HonbobLevel = 2
	HonbobLevelThree HonbobLevel = 3
	HonbobLevelFour  HonbobLevel = 4
)

// ParseHonbobLevel は外部表現（"1"〜"4"）を内部の序数に変換する
// 不正な値は ErrInvalidLevelValue を返す
func ParseHonbobLevel(value string) (HonbobLevel, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevelValue, value)
	}
	level := HonbobLevel(n)
	if level < HonbobLevelOne || level > HonbobLevelFour {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevelValue, value)
	}
	return level, nil
}

// Label はレベルの表示ラベルを返す（埋め込みテキストにも使用）
func (l HonbobLevel) Label() string {
	switch l {
	case HonbobLevelOne:
		return "혼밥하기 아주 편한 가게"
	case HonbobLevelTwo:
		return "혼밥하기 편한 가게"
	case HonbobLevelThree:
		return "혼밥이 조금 부담스러운 가게"
	case HonbobLevelFour:
		return "혼밥이 어려운 가게"
	default:
		return ""
	}
}

// SeatType は座席種別
type SeatType string

const (
	SeatTypeForOne    SeatType = "FOR_ONE"
	SeatTypeForTwo    SeatType = "FOR_TWO"
	SeatTypeForFour   SeatType = "FOR_FOUR"
	SeatTypeBarTable  SeatType = "BAR_TABLE"
	SeatTypePartition SeatType = "PARTITION"
)

// ParseSeatType は座席種別の外部表現を検証して返す
func ParseSeatType(value string) (SeatType, error) {
	switch SeatType(value) {
	case SeatTypeForOne, SeatTypeForTwo, SeatTypeForFour, SeatTypeBarTable, SeatTypePartition:
		return SeatType(value), nil
	default:
		return "", fmt.Errorf("unknown seat type: %q", value)
	}
}

// Label は座席種別の表示名を返す
func (t SeatType) Label() string {
	switch t {
	case SeatTypeForOne:
		return "1인석"
	case SeatTypeForTwo:
		return "2인석"
	case SeatTypeForFour:
		return "4인석"
	case SeatTypeBarTable:
		return "바 테이블"
	case SeatTypePartition:
		return "칸막이석"
	default:
		return string(t)
	}
}

// EmbeddingStatus は埋め込みベクトルの生成状態
type EmbeddingStatus string

const (
	EmbeddingStatusPending   EmbeddingStatus = "PENDING"
	EmbeddingStatusCompleted EmbeddingStatus = "COMPLETED"
	EmbeddingStatusFailed    EmbeddingStatus = "FAILED"
)

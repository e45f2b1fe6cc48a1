package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

const (
	// CandidateRadiusMeters は候補集合を絞る固定半径
	CandidateRadiusMeters = 3000.0
	// TopK は返す類似店舗の上限
	TopK = 5
)

// SimilarStore は類似店舗レコメンドの1件
type SimilarStore struct {
	StoreID        uuid.UUID
	Name           string
	MainImageURL   mo.Option[string]
	Address        mo.Option[string]
	Location       store.Coordinate
	HonbobLevel    mo.Option[store.HonbobLevel]
	CosineDistance float64
}

// Repository はレコメンドのデータアクセスを定義する
// テスト時のモック用に消費者側で定義
type Repository interface {
	// GetStoreByID は基準店舗を取得する
	GetStoreByID(ctx context.Context, id uuid.UUID) (mo.Option[*store.Store], error)

	// ListCandidateIDs は基準店舗の半径内で、レベルが基準以下（=入りやすい）の
	// 店舗IDを返す。基準店舗自身は含めない
	ListCandidateIDs(ctx context.Context, ref *store.Store, radiusMeters float64) ([]uuid.UUID, error)

	// RankByEmbedding は候補集合をコサイン距離の昇順で並べて上位を返す
	// 基準・候補の両方の埋め込みが COMPLETED の行だけが対象になる
	RankByEmbedding(ctx context.Context, refID uuid.UUID, candidateIDs []uuid.UUID, limit int) ([]*SimilarStore, error)
}

// Service は類似店舗レコメンドを実行する
//
// 2段階の候補絞り込みを行う: まず地理半径＋レベルで候補を選び、
// その候補に対してだけ埋め込みのコサイン距離を計算する。
// コサイン計算は高コストなので全カタログに対しては決して実行しない
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService は新しいレコメンドサービスを作成する
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// FindSimilar は基準店舗に似た店舗を最大 TopK 件返す
// 基準店舗が存在しない場合は store.ErrStoreNotFound を返す
func (s *Service) FindSimilar(ctx context.Context, storeID uuid.UUID) ([]*SimilarStore, error) {
	refOpt, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference store: %w", err)
	}
	ref, ok := refOpt.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrStoreNotFound, storeID)
	}

	// ステージ1: 地理条件による候補絞り込み
	candidateIDs, err := s.repo.ListCandidateIDs(ctx, ref, CandidateRadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	// 候補がなければコサイン計算には進まず空を返す
	if len(candidateIDs) == 0 {
		return []*SimilarStore{}, nil
	}

	// ステージ2: 候補集合のみを対象にした埋め込み距離ランキング
	similar, err := s.repo.RankByEmbedding(ctx, ref.ID, candidateIDs, TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates by embedding: %w", err)
	}

	return similar, nil
}

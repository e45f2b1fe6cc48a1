package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

const (
	// DefaultPageSize はページサイズ未指定時の既定値
	DefaultPageSize = 20
	// MaxPageSize は1ページの上限
	MaxPageSize = 50
)

// Hit はフェーズ1が返す（店舗ID・距離・並び替えキー）の組
// 永続化されない一時的な行
type Hit struct {
	StoreID        uuid.UUID
	DistanceMeters float64
	// RankKey は適用された並び替えのキー（距離順なら距離、スコア順なら総合スコア）
	RankKey float64
}

// HitQuery はフェーズ1の問い合わせ条件
type HitQuery struct {
	Filter Filter
	Sort   Sort
	Rank   RankExpression
	Cursor mo.Option[Cursor]
	// Limit には次ページ検出のため「ページサイズ+1」を渡す
	Limit int
	// Dedupe は子テーブル結合により店舗IDの重複排除が必要な場合に true
	Dedupe bool
}

// MenuSummary は検索結果に表示する代表メニュー
type MenuSummary struct {
	Name  string
	Price int
}

// Row は検索結果の1行
type Row struct {
	Store              *store.Store
	DistanceMeters     float64
	WalkingMinutes     int
	MainImageURL       mo.Option[string]
	RepresentativeMenu mo.Option[MenuSummary]
	SeatTypes          []store.SeatType
	Saved              bool
}

// Page は検索結果の1ページ
type Page struct {
	Rows       []*Row
	NextCursor mo.Option[string]
	HasMore    bool
}

// Params は検索リクエスト
type Params struct {
	Filter Filter
	Sort   Sort
	// CursorToken は前ページの NextCursor。壊れていても無視される
	CursorToken string
	PageSize    int
	// UserID は保存済みフラグの解決にのみ使う。匿名検索では None
	UserID mo.Option[uuid.UUID]
}

// Repository は検索のデータアクセスを定義する
// テスト時のモック用に消費者側で定義
type Repository interface {
	// SearchStoreHits は条件を満たす店舗ID列を並び替え済みで解決する（フェーズ1）
	SearchStoreHits(ctx context.Context, q HitQuery) ([]*Hit, error)

	// 以下はフェーズ2の一括取得。ID列に対して1回のクエリで引くこと
	GetStoresByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*store.Store, error)
	GetMainImageURLs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	GetRepresentativeMenus(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuSummary, error)
	GetSeatTypesByStoreIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]store.SeatType, error)
	GetSavedStoreIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Service は2フェーズ検索を実行する
// フェーズ1で絞り込み済みの店舗ID列を解決し、フェーズ2で表示用の属性を一括取得する
type Service struct {
	repo   Repository
	rank   RankExpression
	logger *slog.Logger
}

type serviceOptions struct {
	rank   RankExpression
	logger *slog.Logger
}

// ServiceOption は Service 構築時のオプション
type ServiceOption func(*serviceOptions)

// WithRankExpression は総合スコアの重み設定を差し替える
func WithRankExpression(rank RankExpression) ServiceOption {
	return func(o *serviceOptions) {
		o.rank = rank
	}
}

// WithSearchLogger はロガーを差し替える
func WithSearchLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しい検索サービスを作成する
func NewService(repo Repository, opts ...ServiceOption) *Service {
	options := serviceOptions{
		rank:   DefaultRankExpression(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		repo:   repo,
		rank:   options.rank,
		logger: options.logger,
	}
}

// Rank は適用中の総合スコア定義を返す
func (s *Service) Rank() RankExpression {
	return s.rank
}

// Search は店舗検索を実行する
func (s *Service) Search(ctx context.Context, params Params) (*Page, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	sort := params.Sort
	if sort == "" {
		sort = SortByDistance
	}

	query := HitQuery{
		Filter: params.Filter,
		Sort:   sort,
		Rank:   s.rank,
		Cursor: DecodeCursor(params.CursorToken),
		Limit:  pageSize + 1,
		Dedupe: params.Filter.RequiresChildJoin(),
	}

	// フェーズ1: 店舗ID列の解決
	hits, err := s.repo.SearchStoreHits(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search store hits: %w", err)
	}

	hasMore := len(hits) > pageSize
	if hasMore {
		hits = hits[:pageSize]
	}

	// 空ページはエラーではない。フェーズ2の一括取得はすべてスキップする
	if len(hits) == 0 {
		return &Page{Rows: []*Row{}, NextCursor: mo.None[string](), HasMore: false}, nil
	}

	ids := make([]uuid.UUID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.StoreID
	}

	// フェーズ2: 表示属性の一括取得
	stores, err := s.repo.GetStoresByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}
	images, err := s.repo.GetMainImageURLs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load main images: %w", err)
	}
	menus, err := s.repo.GetRepresentativeMenus(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load representative menus: %w", err)
	}
	seats, err := s.repo.GetSeatTypesByStoreIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load seat types: %w", err)
	}

	saved := map[uuid.UUID]bool{}
	if userID, ok := params.UserID.Get(); ok {
		saved, err = s.repo.GetSavedStoreIDs(ctx, userID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load saved stores: %w", err)
		}
	}

	rows := make([]*Row, 0, len(hits))
	for _, hit := range hits {
		st, ok := stores[hit.StoreID]
		if !ok {
			// フェーズ1とフェーズ2の間に店舗が消えた場合のみ起こり得る
			s.logger.Warn("store disappeared between search phases", "store_id", hit.StoreID)
			continue
		}

		row := &Row{
			Store:          st,
			DistanceMeters: hit.DistanceMeters,
			WalkingMinutes: WalkingMinutes(hit.DistanceMeters),
			SeatTypes:      seats[hit.StoreID],
			Saved:          saved[hit.StoreID],
		}
		if url, ok := images[hit.StoreID]; ok {
			row.MainImageURL = mo.Some(url)
		}
		if menu, ok := menus[hit.StoreID]; ok {
			row.RepresentativeMenu = mo.Some(menu)
		}
		rows = append(rows, row)
	}

	page := &Page{Rows: rows, HasMore: hasMore}
	if hasMore && len(hits) > 0 {
		last := hits[len(hits)-1]
		page.NextCursor = mo.Some(EncodeCursor(Cursor{Key: last.RankKey, ID: last.StoreID}))
	}

	return page, nil
}

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize は1サイクルで処理する店舗数の上限
	DefaultBatchSize = 100
	// DefaultProviderBatchSize は1回のプロバイダ呼び出しに載せるテキスト数
	DefaultProviderBatchSize = 10
	// DefaultMaxConcurrency は同時に実行するプロバイダ呼び出し数の上限
	DefaultMaxConcurrency = 10
	// DefaultSyncTimeout は同期生成時のプロバイダ呼び出しタイムアウト
	DefaultSyncTimeout = 10 * time.Second
)

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed は単一テキストの Embedding を生成する
	Embed(ctx context.Context, text string) ([]float32, error)
	// BatchEmbed は複数テキストの Embedding をまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Repository は埋め込みの永続化を定義する
// テスト時のモック用に消費者側で定義
type Repository interface {
	// GetStoreProfile は同期生成用に単一店舗のプロフィールを取得する
	GetStoreProfile(ctx context.Context, storeID uuid.UUID) (mo.Option[*StoreProfile], error)

	// ListEmbeddingTargets はステータスが PENDING / FAILED（または未生成）の
	// 店舗プロフィールを最大 limit 件取得する
	ListEmbeddingTargets(ctx context.Context, limit int) ([]*StoreProfile, error)

	// SaveEmbedding はベクトルを保存し、ステータスを COMPLETED にする
	// ベクトルとステータスは1文の upsert で同時に書き込むこと
	SaveEmbedding(ctx context.Context, storeID uuid.UUID, vector []float32) error

	// MarkEmbeddingFailed はステータスを FAILED にする（次サイクルで再試行される）
	MarkEmbeddingFailed(ctx context.Context, storeID uuid.UUID) error

	// MarkEmbeddingPending はステータスを PENDING にする（再生成のトリガー）
	MarkEmbeddingPending(ctx context.Context, storeID uuid.UUID) error
}

// Config は埋め込みパイプラインの設定
type Config struct {
	BatchSize         int
	ProviderBatchSize int
	MaxConcurrency    int
	SyncTimeout       time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		ProviderBatchSize: DefaultProviderBatchSize,
		MaxConcurrency:    DefaultMaxConcurrency,
		SyncTimeout:       DefaultSyncTimeout,
	}
}

// BatchStats はバッチサイクル1回分の結果
type BatchStats struct {
	Requested int
	Succeeded int
	Failed    int
}

// Service は店舗プロフィールの埋め込み生成パイプライン
type Service struct {
	repo     Repository
	embedder Embedder
	builder  *TextBuilder
	config   Config
	logger   *slog.Logger
}

// NewService は新しい埋め込みサービスを作成する
func NewService(repo Repository, embedder Embedder, builder *TextBuilder, config Config, logger *slog.Logger) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.ProviderBatchSize <= 0 {
		config.ProviderBatchSize = DefaultProviderBatchSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = DefaultSyncTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     repo,
		embedder: embedder,
		builder:  builder,
		config:   config,
		logger:   logger,
	}
}

// GenerateForStore は単一店舗の埋め込みを同期的に生成する
// 呼び出し元をブロックすることが許されている唯一の生成経路で、
// プロバイダ呼び出しは SyncTimeout で打ち切られる
func (s *Service) GenerateForStore(ctx context.Context, storeID uuid.UUID) error {
	profileOpt, err := s.repo.GetStoreProfile(ctx, storeID)
	if err != nil {
		return fmt.Errorf("failed to get store profile: %w", err)
	}
	profile, ok := profileOpt.Get()
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrStoreNotFound, storeID)
	}

	text := s.builder.Build(profile)

	embedCtx, cancel := context.WithTimeout(ctx, s.config.SyncTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(embedCtx, text)
	if err != nil {
		if markErr := s.repo.MarkEmbeddingFailed(ctx, storeID); markErr != nil {
			s.logger.Error("failed to mark embedding as failed", "store_id", storeID, "error", markErr)
		}
		return fmt.Errorf("failed to embed store profile: %w", err)
	}

	if err := s.repo.SaveEmbedding(ctx, storeID, vector); err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// MarkPending は店舗の埋め込みを再生成対象に戻す
func (s *Service) MarkPending(ctx context.Context, storeID uuid.UUID) error {
	if err := s.repo.MarkEmbeddingPending(ctx, storeID); err != nil {
		return fmt.Errorf("failed to mark embedding as pending: %w", err)
	}
	return nil
}

// TriggerReembedding は店舗属性の更新後に呼ばれる fire-and-forget のトリガー
// 書き込み経路をブロックしたり失敗させたりしてはならないため、
// 非同期に PENDING を立てるだけで結果は待たない
func (s *Service) TriggerReembedding(storeID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.repo.MarkEmbeddingPending(ctx, storeID); err != nil {
			s.logger.Error("failed to trigger re-embedding", "store_id", storeID, "error", err)
		}
	}()
}

// ProcessPendingBatch は PENDING / FAILED の店舗を1サイクル分処理する
//
// プロバイダ呼び出しはサブバッチ単位で並列に発行し、同時実行数を
// MaxConcurrency で制限する。サブバッチの呼び出しが失敗したり、
// 返ってきたベクトル数が要求数と一致しない場合は、どの店舗が失敗したのか
// 特定できないため、そのサブバッチの店舗を1件ずつ順次リトライする。
// 個々の失敗は FAILED として記録され、バッチ全体を失敗させることはない
func (s *Service) ProcessPendingBatch(ctx context.Context) (*BatchStats, error) {
	targets, err := s.repo.ListEmbeddingTargets(ctx, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding targets: %w", err)
	}

	stats := &BatchStats{Requested: len(targets)}
	if len(targets) == 0 {
		return stats, nil
	}

	texts := make([]string, len(targets))
	for i, target := range targets {
		texts[i] = s.builder.Build(target)
	}

	var mu sync.Mutex
	var retryTargets []*StoreProfile
	var retryTexts []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)

	for start := 0; start < len(targets); start += s.config.ProviderBatchSize {
		end := start + s.config.ProviderBatchSize
		if end > len(targets) {
			end = len(targets)
		}
		subTargets := targets[start:end]
		subTexts := texts[start:end]

		g.Go(func() error {
			vectors, err := s.embedder.BatchEmbed(gctx, subTexts)
			if err != nil || len(vectors) != len(subTexts) {
				if err != nil {
					s.logger.Warn("batch embed call failed, falling back to sequential retry",
						"stores", len(subTargets), "error", err)
				} else {
					s.logger.Warn("batch embed returned mismatched count, falling back to sequential retry",
						"requested", len(subTexts), "returned", len(vectors))
				}
				mu.Lock()
				retryTargets = append(retryTargets, subTargets...)
				retryTexts = append(retryTexts, subTexts...)
				mu.Unlock()
				return nil
			}

			for i, target := range subTargets {
				if err := s.repo.SaveEmbedding(gctx, target.StoreID, vectors[i]); err != nil {
					s.logger.Error("failed to save embedding", "store_id", target.StoreID, "error", err)
					s.markFailed(gctx, target.StoreID)
					mu.Lock()
					stats.Failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				stats.Succeeded++
				mu.Unlock()
			}
			return nil
		})
	}

	// 各サブバッチは自身の失敗を回収するため、ここでエラーは返らない
	_ = g.Wait()

	// フォールバック: 失敗を店舗単位で特定するための順次リトライ
	for i, target := range retryTargets {
		if ctx.Err() != nil {
			break
		}
		vector, err := s.embedder.Embed(ctx, retryTexts[i])
		if err != nil {
			s.logger.Error("embedding generation failed", "store_id", target.StoreID, "error", err)
			s.markFailed(ctx, target.StoreID)
			stats.Failed++
			continue
		}
		if err := s.repo.SaveEmbedding(ctx, target.StoreID, vector); err != nil {
			s.logger.Error("failed to save embedding", "store_id", target.StoreID, "error", err)
			s.markFailed(ctx, target.StoreID)
			stats.Failed++
			continue
		}
		stats.Succeeded++
	}

	s.logger.Info("embedding batch cycle finished",
		"requested", stats.Requested,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (s *Service) markFailed(ctx context.Context, storeID uuid.UUID) {
	if err := s.repo.MarkEmbeddingFailed(ctx, storeID); err != nil {
		s.logger.Error("failed to mark embedding as failed", "store_id", storeID, "error", err)
	}
}

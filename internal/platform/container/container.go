package container

import (
	"context"
	"fmt"
	"log/slog"

	coreembedding "github.com/jinford/honbob-navi/internal/core/embedding"
	corerecommend "github.com/jinford/honbob-navi/internal/core/recommend"
	corescoring "github.com/jinford/honbob-navi/internal/core/scoring"
	coresearch "github.com/jinford/honbob-navi/internal/core/search"
	"github.com/jinford/honbob-navi/internal/infra/openai"
	"github.com/jinford/honbob-navi/internal/infra/postgres"
	"github.com/jinford/honbob-navi/internal/platform/config"
	"github.com/jinford/honbob-navi/internal/platform/database"
)

// ServiceContainer はアプリケーション全体の依存関係を保持する。
type ServiceContainer struct {
	SearchService    *coresearch.Service
	ScoringService   *corescoring.Service
	RecommendService *corerecommend.Service
	EmbeddingService *coreembedding.Service

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger   *slog.Logger
	embedder coreembedding.Embedder
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder coreembedding.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	return NewContainerWithDB(cfg, db, opts...)
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
		options.logger.Info("embedding provider initialized",
			"model", openaiEmbedder.ModelName(),
			"dimension", openaiEmbedder.Dimension(),
		)
		embedder = openaiEmbedder
	}

	// SearchService
	rank := coresearch.RankExpression{
		InternalWeight:       cfg.Search.InternalWeight,
		DistanceWeight:       cfg.Search.DistanceWeight,
		MaxRadiusMeters:      cfg.Search.MaxRadiusMeters,
		DefaultInternalScore: cfg.Search.DefaultInternalScore,
	}
	searchRepo := postgres.NewSearchRepository(db.Pool)
	searchService := coresearch.NewService(
		searchRepo,
		coresearch.WithRankExpression(rank),
		coresearch.WithSearchLogger(options.logger),
	)

	// ScoringService
	scoringRepo := postgres.NewScoringRepository(db.Pool)
	calculator := corescoring.NewCalculator(corescoring.DefaultConfig())
	scoringService := corescoring.NewService(scoringRepo, calculator, options.logger)

	// RecommendService
	recommendRepo := postgres.NewRecommendRepository(db.Pool)
	recommendService := corerecommend.NewService(recommendRepo, options.logger)

	// EmbeddingService
	textBuilder, err := coreembedding.NewTextBuilder(coreembedding.DefaultMaxProfileTokens)
	if err != nil {
		return nil, fmt.Errorf("TextBuilder 初期化に失敗しました: %w", err)
	}
	embeddingRepo := postgres.NewEmbeddingRepository(db.Pool)
	embeddingService := coreembedding.NewService(
		embeddingRepo,
		embedder,
		textBuilder,
		coreembedding.Config{
			BatchSize:         cfg.Embedding.BatchSize,
			ProviderBatchSize: cfg.Embedding.ProviderBatchSize,
			MaxConcurrency:    cfg.Embedding.MaxConcurrency,
			SyncTimeout:       cfg.Embedding.SyncTimeout,
		},
		options.logger,
	)

	return &ServiceContainer{
		SearchService:    searchService,
		ScoringService:   scoringService,
		RecommendService: recommendService,
		EmbeddingService: embeddingService,
		logger:           options.logger,
		database:         db,
	}, nil
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す。
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}

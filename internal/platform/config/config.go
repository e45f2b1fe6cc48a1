package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// 検索ランキング設定
	Search SearchConfig

	// Embeddingバッチ設定
	Embedding EmbeddingConfig

	// バックグラウンドワーカー設定
	Scheduler SchedulerConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	Logging LoggingConfig
}

// LoggingConfig はログ出力の設定
type LoggingConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings用）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
}

// SearchConfig は複合スコアランキングの設定
type SearchConfig struct {
	InternalWeight       float64 // 内部スコアの重み
	DistanceWeight       float64 // 距離スコアの重み
	MaxRadiusMeters      float64 // 距離スコアが0になる半径
	DefaultInternalScore float64 // 内部スコア未計算時の代替値
}

// EmbeddingConfig はEmbedding生成バッチの設定
type EmbeddingConfig struct {
	BatchSize         int           // 1サイクルで処理する店舗数の上限
	ProviderBatchSize int           // 1リクエストに載せるテキスト数
	MaxConcurrency    int           // 同時リクエスト数の上限
	SyncTimeout       time.Duration // 同期生成のタイムアウト
}

// SchedulerConfig は定期実行ワーカーの設定
type SchedulerConfig struct {
	Enabled           bool
	ScoreInterval     time.Duration // スコア再計算の間隔
	EmbeddingInterval time.Duration // Embeddingバッチの間隔
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "honbob"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "honbob"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		Search: SearchConfig{
			InternalWeight:       getEnvAsFloat("SEARCH_INTERNAL_WEIGHT", 0.3),
			DistanceWeight:       getEnvAsFloat("SEARCH_DISTANCE_WEIGHT", 0.7),
			MaxRadiusMeters:      getEnvAsFloat("SEARCH_MAX_RADIUS_METERS", 5000),
			DefaultInternalScore: getEnvAsFloat("SEARCH_DEFAULT_INTERNAL_SCORE", 50),
		},
		Embedding: EmbeddingConfig{
			BatchSize:         getEnvAsInt("EMBEDDING_BATCH_SIZE", 100),
			ProviderBatchSize: getEnvAsInt("EMBEDDING_PROVIDER_BATCH_SIZE", 10),
			MaxConcurrency:    getEnvAsInt("EMBEDDING_MAX_CONCURRENCY", 10),
			SyncTimeout:       getEnvAsDuration("EMBEDDING_SYNC_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvAsBool("SCHEDULER_ENABLED", true),
			ScoreInterval:     getEnvAsDuration("SCHEDULER_SCORE_INTERVAL", 10*time.Minute),
			EmbeddingInterval: getEnvAsDuration("SCHEDULER_EMBEDDING_INTERVAL", 5*time.Minute),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をDurationとして取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Ingestion IngestionConfig
	Chat      ChatConfig
	Quota     QuotaConfig
	Billing   BillingConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	Environment  string
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

type StorageConfig struct {
	ObjectDir string
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type ChatConfig struct {
	TopK              int
	ContextChars      int
	HistoryLoad       int
	HistoryKeep       int
	GenerationTimeout int
}

type QuotaConfig struct {
	FreeQuestionLimit int
	ProQuestionLimit  int
	FreeDocumentLimit int
	ProDocumentLimit  int
}

type BillingConfig struct {
	WebhookSecret string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docchat")

	viper.SetEnvPrefix("DOCCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 26214400)
	viper.SetDefault("server.environment", "development")

	viper.SetDefault("sqlite.path", "./data/docchat.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "doc_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 1024)

	viper.SetDefault("storage.objectDir", "./data/uploads")

	viper.SetDefault("ingestion.chunkSize", 2000)
	viper.SetDefault("ingestion.chunkOverlap", 200)

	viper.SetDefault("chat.topK", 3)
	viper.SetDefault("chat.contextChars", 3000)
	viper.SetDefault("chat.historyLoad", 6)
	viper.SetDefault("chat.historyKeep", 4)
	viper.SetDefault("chat.generationTimeout", 45)

	viper.SetDefault("quota.freeQuestionLimit", 2)
	viper.SetDefault("quota.proQuestionLimit", 20)
	viper.SetDefault("quota.freeDocumentLimit", 2)
	viper.SetDefault("quota.proDocumentLimit", 20)

	viper.SetDefault("ratelimit.requestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"helix-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"helix"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Source APIs
	CTGovBaseURL         string        `env:"CTGOV_BASE_URL" env-default:"https://clinicaltrials.gov/api/v2"`
	CTGovPageSize        int           `env:"CTGOV_PAGE_SIZE" env-default:"100"`
	OpenFDABaseURL       string        `env:"OPENFDA_BASE_URL" env-default:"https://api.fda.gov"`
	OpenFDAAPIKey        string        `env:"OPENFDA_API_KEY" env-default:""`
	OpenFDAPageSize      int           `env:"OPENFDA_PAGE_SIZE" env-default:"100"`
	EdgarBaseURL         string        `env:"EDGAR_BASE_URL" env-default:"https://www.sec.gov"`
	EdgarUserAgent       string        `env:"EDGAR_USER_AGENT" env-default:"helix-api admin@pharmaintel.io"`
	SourceTimeoutSeconds int           `env:"SOURCE_TIMEOUT_SECONDS" env-default:"30"`
	SourceMaxRetries     int           `env:"SOURCE_MAX_RETRIES" env-default:"5"`
	SourceBackoffInitial time.Duration `env:"SOURCE_BACKOFF_INITIAL" env-default:"1s"`
	SourceDaysBack       int           `env:"SOURCE_DAYS_BACK" env-default:"30"`

	// Ingestion
	IngestChunkSize    int `env:"INGEST_CHUNK_SIZE" env-default:"50"`
	ETLHistoryPageSize int `env:"ETL_HISTORY_PAGE_SIZE" env-default:"50"`

	// Kafka Producer settings
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaProducerEnabled bool     `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaRunTopic        string   `env:"KAFKA_RUN_TOPIC" env-default:"ingestion-runs"`
	KafkaEntityTopic     string   `env:"KAFKA_ENTITY_TOPIC" env-default:"entity-events"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingOTLPProtocol string `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc"`
}

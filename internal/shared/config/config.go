package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTablePath is the location of the analysis log table inside the object store.
const DefaultTablePath = "master_catalog/adeg/analysis/log_adeg_summary"

// Config holds application configuration. It is built once at startup and passed
// by value into the components that need it.
type Config struct {
	Port               string
	CORSAllowOrigin    []string
	Env                string
	LogLevel           string
	SnapshotStore      string
	DatabaseURL        string
	ObjectStoreType    string
	LocalStoreDir      string
	BadgerDir          string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	S3KMSKeyID         string
	GCSBucket          string
	GCSCredentialsFile string
	GCSAccessToken     string
	TablePath          string
	SeedFile           string
	StoreReadTimeout   time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	IngestQueueURL     string
	IngestConcurrency  int
	IngestVisibility   time.Duration
	ShutdownTimeout    time.Duration
	TraceExporter      string
	OTLPEndpoint       string
	OTLPInsecure       bool
	ServiceName        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	storeType := normalizeSnapshotStore(getEnv("SNAPSHOT_STORE", ""), dbURL)

	if env == "production" && storeType == "postgres" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:8050")),
		Env:                env,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SnapshotStore:      storeType,
		DatabaseURL:        dbURL,
		ObjectStoreType:    normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:      getEnv("LOCAL_STORE_DIR", "./data"),
		BadgerDir:          getEnv("BADGER_DIR", "./data/badger"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		S3KMSKeyID:         getEnv("S3_KMS_KEY_ID", ""),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		GCSAccessToken:     getEnv("GCS_ACCESS_TOKEN", ""),
		TablePath:          strings.Trim(getEnv("SNAPSHOT_TABLE_PATH", DefaultTablePath), "/"),
		SeedFile:           getEnv("SNAPSHOT_SEED_FILE", ""),
		StoreReadTimeout:   getDuration("STORE_READ_TIMEOUT", 15*time.Second),
		RateLimitRPS:       getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),
		IngestQueueURL:     strings.TrimSpace(getEnv("INGEST_SQS_QUEUE_URL", "")),
		IngestConcurrency:  getInt("INGEST_WORKER_CONCURRENCY", 4),
		IngestVisibility:   getDuration("INGEST_SQS_VISIBILITY_TIMEOUT", 5*time.Minute),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		TraceExporter:      strings.ToLower(getEnv("OTEL_TRACES_EXPORTER", "none")),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:        getEnv("OTEL_SERVICE_NAME", "biomrk-api"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		log.Printf("config %s invalid number %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		log.Printf("config %s invalid integer %q, using %d", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

// normalizeSnapshotStore picks the snapshot backend. Without an explicit choice a
// configured DATABASE_URL selects postgres.
func normalizeSnapshotStore(raw, dbURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "object", "delta", "lake":
		return "object"
	case "memory":
		return "memory"
	case "badger", "embedded":
		return "badger"
	}
	if strings.TrimSpace(dbURL) != "" {
		return "postgres"
	}
	return "object"
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "gcs", "gs":
		return "gcs"
	default:
		return "local"
	}
}

package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	DataDir             string
	UploadDir           string
	MarkdownDir         string
	MetadataDir         string
	LogDir              string
	ProgressEndpoint    string
	EmbeddingAPIURL     string
	EmbeddingModel      string
	EmbeddingDimensions int
	SparseDimensions    int
	PollInterval        time.Duration
	ListenBackoff       time.Duration
	Domains             []string
	CertCacheDir        string
	HTTPPort            string
	HTTPSPort           string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return Config{
		Environment:         getEnv("ENVIRONMENT", "development"),
		DataDir:             dataDir,
		UploadDir:           filepath.Join(dataDir, "raw_files"),
		MarkdownDir:         filepath.Join(dataDir, "markdown_files"),
		MetadataDir:         filepath.Join(dataDir, "metadata_files"),
		LogDir:              getEnv("LOG_DIR", "logs"),
		ProgressEndpoint:    getEnv("PROGRESS_ENDPOINT", ""),
		EmbeddingAPIURL:     getEnv("EMBEDDING_API_URL", "https://api.openai.com/v1/embeddings"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
		SparseDimensions:    getEnvAsInt("SPARSE_DIMENSIONS", 30522),
		PollInterval:        time.Duration(getEnvAsInt("POLL_INTERVAL", 60)) * time.Second,
		ListenBackoff:       time.Duration(getEnvAsInt("LISTEN_BACKOFF", 30)) * time.Second,
		Domains:             []string{getEnv("DOMAIN", "example.com")},
		CertCacheDir:        getEnv("CERT_CACHE_DIR", "/etc/letsencrypt/live/example.com"),
		HTTPPort:            getEnv("HTTP_PORT", "8086"),
		HTTPSPort:           getEnv("HTTPS_PORT", "443"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

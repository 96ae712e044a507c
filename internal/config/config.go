package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. Values are read by
// Viper from config.yaml and/or environment variables (SERVER_ADDRESS,
// UPLOAD_SESSION_TTL, ...).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Stream   StreamConfig   `mapstructure:"stream"`
	HLS      HLSConfig      `mapstructure:"hls"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	// Driver selects the metadata store: "mongo" for production, "memory"
	// for local development without a database.
	Driver string `mapstructure:"driver"`
	URI    string `mapstructure:"uri"`
	Name   string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// RedisConfig is optional; an empty address disables playlist caching.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// UploadConfig tunes the chunked-upload engine.
type UploadConfig struct {
	DefaultChunkSize int64         `mapstructure:"default_chunk_size"`
	MaxChunkSize     int64         `mapstructure:"max_chunk_size"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// StreamConfig tunes range serving.
type StreamConfig struct {
	// DefaultRangeWindow caps open-ended range requests (bytes=N-).
	DefaultRangeWindow int64 `mapstructure:"default_range_window"`
}

type HLSConfig struct {
	SegmentSeconds int           `mapstructure:"segment_seconds"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	// Nested keys map to env vars with underscores: upload.session_ttl ->
	// UPLOAD_SESSION_TTL.
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.driver", "mongo")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "streamvault")
	viper.SetDefault("s3.region", "auto")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("jwt.expiration", "24h")
	viper.SetDefault("upload.default_chunk_size", 10*1024*1024)
	viper.SetDefault("upload.max_chunk_size", 100*1024*1024)
	viper.SetDefault("upload.session_ttl", "24h")
	viper.SetDefault("upload.sweep_interval", "10m")
	viper.SetDefault("stream.default_range_window", 5*1024*1024)
	viper.SetDefault("hls.segment_seconds", 10)
	viper.SetDefault("hls.cache_ttl", "1h")
	viper.SetDefault("worker.poll_interval", "5s")
	viper.SetDefault("worker.claim_timeout", "2m")

	err = viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No config file is fine; env vars and defaults carry it.
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

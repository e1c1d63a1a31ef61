package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Encoder     EncoderConfig
	Database    DatabaseConfig
	Gallery     GalleryConfig
	Recognition RecognitionConfig
	Stream      StreamConfig
	Server      ServerConfig
}

type EncoderConfig struct {
	URL          string // face encoder server URL (defaults to http://localhost:8000)
	Model        string // detection model name, informational (defaults to hog)
	MaxImageSize int    // images larger than this on either side are downscaled before encoding
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the person directory
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type GalleryConfig struct {
	Path string // path of the persisted encoding gallery (default output/encodings.json)
}

type RecognitionConfig struct {
	Tolerance     float64 // maximum embedding distance for a candidate match (default 0.6)
	MinConfidence float64 // confidence floor for accepting a best-of match (default 50)
}

type ServerConfig struct {
	Host string // listen address of the recognition server (default 0.0.0.0)
	Port int    // listen port of the recognition server (default 3000)
}

type StreamConfig struct {
	ServerURL       string        // websocket URL of the remote resolver (default ws://localhost:3000/ws)
	FrameInterval   time.Duration // minimum delay between submitted frames (default 1s)
	ResponseTimeout time.Duration // how long to wait for a resolution response (default 10s)
	MaxRetries      int           // reconnection attempts before the session terminates (default 3)
	Backoff         time.Duration // fixed delay between reconnection attempts (default 2s)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a duration ("1s", "500ms").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Encoder: EncoderConfig{
			URL:          envString("ENCODER_URL", "http://localhost:8000"),
			Model:        envString("ENCODER_MODEL", "hog"),
			MaxImageSize: envInt("ENCODER_MAX_IMAGE_SIZE", 1024),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Gallery: GalleryConfig{
			Path: envString("GALLERY_PATH", "output/encodings.json"),
		},
		Recognition: RecognitionConfig{
			Tolerance:     envFloat("RECOGNITION_TOLERANCE", 0.6),
			MinConfidence: envFloat("RECOGNITION_MIN_CONFIDENCE", 50),
		},
		Server: ServerConfig{
			Host: envString("SERVER_HOST", "0.0.0.0"),
			Port: envInt("SERVER_PORT", 3000),
		},
		Stream: StreamConfig{
			ServerURL:       envString("STREAM_SERVER_URL", "ws://localhost:3000/ws"),
			FrameInterval:   envDuration("STREAM_FRAME_INTERVAL", time.Second),
			ResponseTimeout: envDuration("STREAM_RESPONSE_TIMEOUT", 10*time.Second),
			MaxRetries:      envInt("STREAM_MAX_RETRIES", 3),
			Backoff:         envDuration("STREAM_BACKOFF", 2*time.Second),
		},
	}
}

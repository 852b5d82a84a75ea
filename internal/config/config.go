// Package config loads server and worker configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	DBPath           string
	StorageDir       string
	MaxDownloadBytes int64
	WMSTimeout       time.Duration
	FetchTimeout     time.Duration
	WorkerID         string
	WorkerPoll       time.Duration
	TileMemCacheSize int
}

func FromEnv() Config {
	return Config{
		Addr:             getenv("ADDR", ":8080"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		DBPath:           getenv("DB_PATH", "geomapper.db"),
		StorageDir:       getenv("STORAGE_DIR", "storage"),
		MaxDownloadBytes: getint64("MAX_DOWNLOAD_BYTES", 500*1024*1024),
		WMSTimeout:       getduration("WMS_TIMEOUT", 15*time.Second),
		FetchTimeout:     getduration("FETCH_TIMEOUT", 2*time.Minute),
		WorkerID:         getenv("WORKER_ID", ""),
		WorkerPoll:       getduration("WORKER_POLL_INTERVAL", 2*time.Second),
		TileMemCacheSize: getint("TILE_MEM_CACHE_SIZE", 1024),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

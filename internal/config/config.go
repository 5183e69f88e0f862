// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	// memory | postgres
	StoreDriver string
	PostgresDSN string
	SeedFile    string

	RedisAddr      string
	CacheEnabled   bool
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration

	Invalidation InvalidationCfg

	RegionIndexEnabled bool
	RegionIndexRes     int
	RegionIndexRefresh time.Duration

	// fallback estimate when the caller supplies no distance/duration
	AvgSpeedKmh float64

	VehicleCacheSize int
}

func FromEnv() Config {
	res := getint("REGION_INDEX_RES", 6)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", "memory")),
		PostgresDSN: getenv("POSTGRES_DSN", ""),
		SeedFile:    getenv("SEED_FILE", ""),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:   getbool("CACHE_ENABLED", false),
		CacheTTL:       getduration("CACHE_TTL", 5*time.Minute),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "pricing-config-changes"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "farequote-invalidator"),
		},

		RegionIndexEnabled: getbool("REGION_INDEX_ENABLED", true),
		RegionIndexRes:     res,
		RegionIndexRefresh: getduration("REGION_INDEX_REFRESH", 5*time.Minute),

		AvgSpeedKmh: getfloat("AVG_SPEED_KMH", 40),

		VehicleCacheSize: getint("VEHICLE_CACHE_SIZE", 256),
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

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		return strings.ToLower(v) == "true"
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

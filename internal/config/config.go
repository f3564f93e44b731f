package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	MongoURI      string
	MongoDatabase string

	// PlaceOrderTimeout bounds one placement attempt end to end.
	PlaceOrderTimeout time.Duration
	// OrderNumberRetries bounds regeneration attempts on a number collision.
	OrderNumberRetries int
}

// Load reads configuration from the environment, optionally seeded from a .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServiceName:        getenv("SERVICE_NAME", "vinoir-orders"),
		Env:                getenv("ENV", "dev"),
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		MongoURI:           getenv("MONGO_URI", ""),
		MongoDatabase:      getenv("MONGO_DATABASE", "vinoir"),
		PlaceOrderTimeout:  getduration("PLACE_ORDER_TIMEOUT", 10*time.Second),
		OrderNumberRetries: getint("ORDER_NUMBER_RETRIES", 5),
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
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

package common

import (
	"os"
	"strconv"
)

// Config holds the runtime knobs for the bank-core server: where the
// document store lives, which HTTP port to listen on, and the one
// algorithmic knob the spec names -- the recovery age threshold.
type Config struct {
	Port                                  string
	MongoURI                              string
	MongoDatabase                         string
	JWTSecret                             string
	AgeOfTransactionsRequiringRecoveryMS int
}

func LoadConfig() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "bankcore"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		AgeOfTransactionsRequiringRecoveryMS: GetEnvInt("RECOVERY_AGE_MS", 5000),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Helper functions for environment variable handling
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// ProverConfig is the process configuration read from the environment
type ProverConfig struct {
	ListenAddr      string
	VerifierAddress string
	MaxSentData     int
	MaxRecvData     int
	Development     bool
	NotaryTimeout   time.Duration
	SessionTimeout  time.Duration // 0 leaves sessions unbounded
}

// LoadProverConfig reads an optional .env file and then the environment.
// The returned bool reports whether a .env file was loaded.
func LoadProverConfig() (*ProverConfig, bool) {
	loaded := godotenv.Load() == nil

	return &ProverConfig{
		ListenAddr:      GetEnvOrDefault("LISTEN_ADDR", ":8090"),
		VerifierAddress: GetEnvOrDefault("VERIFIER_ADDRESS", "127.0.0.1:8079"),
		MaxSentData:     GetEnvIntOrDefault("MAX_SENT_DATA", 4096),
		MaxRecvData:     GetEnvIntOrDefault("MAX_RECV_DATA", 16384),
		Development:     GetEnvBoolOrDefault("DEVELOPMENT", false),
		NotaryTimeout:   time.Duration(GetEnvIntOrDefault("NOTARY_TIMEOUT_SECONDS", 60)) * time.Second,
		SessionTimeout:  time.Duration(GetEnvIntOrDefault("SESSION_TIMEOUT_SECONDS", 0)) * time.Second,
	}, loaded
}

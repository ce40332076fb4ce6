package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Lending  LendingConfig
	LogLevel string
}

type DatabaseConfig struct {
	Path string
}

type LendingConfig struct {
	LoanDays          int    // default loan period when no due date is given
	FineSweepSchedule string // cron spec for `fines watch`
}

// Load reads an optional .env file from the working directory and then builds
// the Config from environment variables with defaults.
func Load() *Config {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are ignored;
// variables already present in the environment win.
func LoadFiles(files ...string) *Config {
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	return &Config{
		Database: DatabaseConfig{
			Path: getEnv("LIBRARY_DB_PATH", defaultDBPath()),
		},
		Lending: LendingConfig{
			LoanDays:          getEnvInt("LOAN_DAYS", 14),
			FineSweepSchedule: getEnv("FINE_SWEEP_SCHEDULE", "@daily"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "library.db"
	}
	return filepath.Join(home, "LibraryManagementSystem", "library.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

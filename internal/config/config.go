package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// #region config
// Config is the process configuration shared by the hpctl commands.
type Config struct {
	DBPath       string
	ProtocolsDir string
	GRPCAddr     string
	LogLevel     string
	MinimumScore float64
	Debounce     time.Duration
	DICOMCache   int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:     "hanging_protocols.db",
		GRPCAddr:   "localhost:50061",
		LogLevel:   "info",
		Debounce:   250 * time.Millisecond,
		DICOMCache: 512,
	}
}

// Load reads .env from the working directory when present, then the HP_*
// environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the HP_* environment variables over the defaults.
func FromEnv() (Config, error) {
	def := Default()
	cfg := Config{
		DBPath:       envOr("HP_DB", def.DBPath),
		ProtocolsDir: envOr("HP_PROTOCOLS", def.ProtocolsDir),
		GRPCAddr:     envOr("HP_GRPC_ADDR", def.GRPCAddr),
		LogLevel:     envOr("HP_LOG_LEVEL", def.LogLevel),
	}

	var err error
	if cfg.MinimumScore, err = strconv.ParseFloat(envOr("HP_MIN_SCORE", "0"), 64); err != nil {
		return Config{}, fmt.Errorf("HP_MIN_SCORE: %w", err)
	}
	if cfg.Debounce, err = time.ParseDuration(envOr("HP_DEBOUNCE", def.Debounce.String())); err != nil {
		return Config{}, fmt.Errorf("HP_DEBOUNCE: %w", err)
	}
	if cfg.DICOMCache, err = strconv.Atoi(envOr("HP_DICOM_CACHE", strconv.Itoa(def.DICOMCache))); err != nil {
		return Config{}, fmt.Errorf("HP_DICOM_CACHE: %w", err)
	}
	if cfg.DICOMCache <= 0 {
		return Config{}, fmt.Errorf("HP_DICOM_CACHE must be positive, got %d", cfg.DICOMCache)
	}
	return cfg, nil
}

// #endregion config

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

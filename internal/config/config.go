// Package config loads the environment variables spec.md §6 recognizes at
// process startup. It deliberately stays a thin os.Getenv-based loader per
// spec.md's framing of configuration as an out-of-scope external
// collaborator -- grounded on the prototype's config.rs::Settings::from_env
// shape rather than the teacher's heavier JSON5/ServerFlags machinery.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/trustguide/directory/internal/apperr"
)

// RunMode is the RUN_MODE dispatch value.
type RunMode string

const (
	RunModeAPI         RunMode = "api"
	RunModeWorker      RunMode = "worker"
	RunModeRefreshOnce RunMode = "refresh_once"
)

// Config is every environment-derived setting the process needs.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string

	IngestionIntervalHours int
	RunMode                RunMode

	DatabaseURL                string
	EnableBackgroundIngestion bool
}

// FromEnv loads Config from the process environment, applying spec.md §6's
// defaults and returning apperr.ConfigFailure if a present value is
// unparseable.
func FromEnv() (Config, error) {
	cfg := Config{
		Host:                   envOr("HOST", "0.0.0.0"),
		CORSOrigin:             envOr("CORS_ORIGIN", "http://localhost:5173"),
		IngestionIntervalHours: 24,
		RunMode:                RunModeAPI,
		DatabaseURL:            os.Getenv("DATABASE_URL"),
	}

	port, err := intEnv("PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	cfg.Port = port

	interval, err := intEnv("INGESTION_INTERVAL_HOURS", 24)
	if err != nil {
		return Config{}, err
	}
	cfg.IngestionIntervalHours = interval

	if v := os.Getenv("RUN_MODE"); v != "" {
		mode := RunMode(strings.ToLower(v))
		switch mode {
		case RunModeAPI, RunModeWorker, RunModeRefreshOnce:
			cfg.RunMode = mode
		default:
			return Config{}, apperr.New(apperr.ConfigFailure, "RUN_MODE must be one of api, worker, refresh_once, got "+v)
		}
	}

	enableBG, err := boolEnv("ENABLE_BACKGROUND_INGESTION", false)
	if err != nil {
		return Config{}, err
	}
	cfg.EnableBackgroundIngestion = enableBG

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.ConfigFailure, key+" must be an integer, got "+v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.New(apperr.ConfigFailure, key+" must be a boolean, got "+v)
	}
	return b, nil
}

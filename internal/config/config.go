package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultEvaluateWorkers = 4
	defaultExpirySweep     = 5 * time.Minute

	// MetricsDisabled turns the metrics listener off when used as METRICS_ADDR.
	MetricsDisabled = "off"

	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DatabaseURL       string
	HTTPAddr          string
	MetricsAddr       string
	StoreBackend      string
	RiskModelDir      string
	RiskModelVersion  string
	CABMembers        []string
	SecurityReviewers []string
	EvaluateWorkers   int

	// ExpirySweepInterval is how often lapsed exception requests are closed;
	// zero disables the sweep and leaves expiry to reads.
	ExpirySweepInterval time.Duration
}

// MetricsEnabled reports whether a metrics listener should be started.
func (c Config) MetricsEnabled() bool {
	return c.MetricsAddr != "" && !strings.EqualFold(c.MetricsAddr, MetricsDisabled)
}

// MetricsShared reports whether /metrics is served on the API listener
// instead of a dedicated one.
func (c Config) MetricsShared() bool {
	return c.MetricsEnabled() && strings.TrimSpace(c.MetricsAddr) == strings.TrimSpace(c.HTTPAddr)
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:       getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		RiskModelDir:      strings.TrimSpace(os.Getenv("RISK_MODEL_DIR")),
		RiskModelVersion:  strings.TrimSpace(os.Getenv("RISK_MODEL_VERSION")),
		CABMembers:        getenvList("CAB_MEMBERS"),
		SecurityReviewers: getenvList("SECURITY_REVIEWERS"),
		EvaluateWorkers:   getenvIntDefault("EVALUATE_WORKERS", defaultEvaluateWorkers),

		ExpirySweepInterval: defaultExpirySweep,
	}

	if v := os.Getenv("EXPIRY_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.ExpirySweepInterval = d
		}
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	switch backend {
	case "":
		backend = BackendMemory
		if cfg.DatabaseURL != "" {
			backend = BackendPostgres
		}
	case BackendPostgres, BackendMemory:
	default:
		return cfg, fmt.Errorf("STORE_BACKEND must be one of: %s, %s", BackendPostgres, BackendMemory)
	}
	cfg.StoreBackend = backend

	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required for the postgres store backend")
	}
	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// getenvList splits a comma separated value, dropping blanks.
func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

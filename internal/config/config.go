// Package config loads server settings from an optional TOML file and
// REFECTORY_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	ReaderAddr string `toml:"reader_addr"`
	HTTPAddr   string `toml:"http_addr"`
	GRPCAddr   string `toml:"grpc_addr"`

	// DB
	Env           string `toml:"env"`   // "dev" | "prod"
	Store         string `toml:"store"` // "sqlite" | "memory"
	DBPath        string `toml:"db_path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`

	// Reader ingress
	ReadTimeoutMS int      `toml:"read_timeout_ms"`
	LockTimeoutMS int      `toml:"lock_timeout_ms"`
	AcceptRate    float64  `toml:"accept_rate"` // connections/s, 0 = unlimited
	AcceptBurst   int      `toml:"accept_burst"`
	KnownDevices  []string `toml:"known_devices"`
	Timezone      string   `toml:"timezone"`

	SwipeWindows []string `toml:"swipe_windows"`

	// Roster reconciliation
	TimePointA     string   `toml:"time_point_a"`
	TimePointB     string   `toml:"time_point_b"`
	TimePointC     string   `toml:"time_point_c"`
	AllWindowCodes []string `toml:"all_window_shifts"`
	DayCodes       []string `toml:"day_shifts"`
	RosterDir      string   `toml:"roster_dir"`
	BatchSize      int      `toml:"batch_size"`
	MaxWorkers     int      `toml:"max_workers"`
	SheetCacheSize int      `toml:"sheet_cache_size"`
	HealthErrorCap int      `toml:"health_error_cap"`

	// Heartbeat retention
	HeartbeatRetentionDays int `toml:"heartbeat_retention_days"` // 0 = keep forever
	PruneIntervalHours     int `toml:"prune_interval_hours"`

	schedule window.Schedule
	points   window.TimePoints
	location *time.Location
}

func Default() Config {
	return Config{
		ReaderAddr:    ":88",
		HTTPAddr:      ":8080",
		GRPCAddr:      ":9090",
		Env:           "dev",
		Store:         StoreSQLite,
		DBPath:        "./data/refectory.db",
		BusyTimeoutMS: 5000,

		ReadTimeoutMS: 5000,
		LockTimeoutMS: 5000,
		AcceptRate:    200,
		AcceptBurst:   50,
		Timezone:      "Local",

		SwipeWindows: []string{"03:25-05:35", "09:20-10:35", "14:55-17:40"},

		TimePointA:     "03:25",
		TimePointB:     "09:25",
		TimePointC:     "20:24",
		AllWindowCodes: []string{"ns", "lds"},
		DayCodes:       []string{"ds"},
		RosterDir:      "./excel",
		BatchSize:      100,
		MaxWorkers:     4,
		SheetCacheSize: 10,
		HealthErrorCap: 50,

		HeartbeatRetentionDays: 30,
		PruneIntervalHours:     6,
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// REFECTORY_CONFIG if set, then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("REFECTORY_CONFIG")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ReaderAddr = getenvDefault("REFECTORY_READER_ADDR", c.ReaderAddr)
	c.HTTPAddr = getenvDefault("REFECTORY_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvDefault("REFECTORY_GRPC_ADDR", c.GRPCAddr)

	c.Env = strings.ToLower(getenvDefault("REFECTORY_ENV", c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.Store = strings.ToLower(getenvDefault("REFECTORY_STORE", c.Store))
	c.DBPath = getenvDefault("REFECTORY_DB_PATH", c.DBPath)
	c.BusyTimeoutMS = getenvInt("REFECTORY_BUSY_TIMEOUT_MS", c.BusyTimeoutMS)

	c.ReadTimeoutMS = getenvInt("REFECTORY_READ_TIMEOUT_MS", c.ReadTimeoutMS)
	c.LockTimeoutMS = getenvInt("REFECTORY_LOCK_TIMEOUT_MS", c.LockTimeoutMS)
	c.AcceptRate = getenvFloat("REFECTORY_ACCEPT_RATE", c.AcceptRate)
	c.AcceptBurst = getenvInt("REFECTORY_ACCEPT_BURST", c.AcceptBurst)
	c.KnownDevices = getenvCSV("REFECTORY_KNOWN_DEVICES", c.KnownDevices)
	c.Timezone = getenvDefault("REFECTORY_TIMEZONE", c.Timezone)

	c.SwipeWindows = getenvCSV("REFECTORY_SWIPE_WINDOWS", c.SwipeWindows)

	c.TimePointA = getenvDefault("REFECTORY_TIME_POINT_A", c.TimePointA)
	c.TimePointB = getenvDefault("REFECTORY_TIME_POINT_B", c.TimePointB)
	c.TimePointC = getenvDefault("REFECTORY_TIME_POINT_C", c.TimePointC)
	c.AllWindowCodes = getenvCSV("REFECTORY_ALL_WINDOW_SHIFTS", c.AllWindowCodes)
	c.DayCodes = getenvCSV("REFECTORY_DAY_SHIFTS", c.DayCodes)
	c.RosterDir = getenvDefault("REFECTORY_ROSTER_DIR", c.RosterDir)
	c.BatchSize = getenvInt("REFECTORY_BATCH_SIZE", c.BatchSize)
	c.MaxWorkers = getenvInt("REFECTORY_MAX_WORKERS", c.MaxWorkers)
	c.SheetCacheSize = getenvInt("REFECTORY_SHEET_CACHE_SIZE", c.SheetCacheSize)
	c.HealthErrorCap = getenvInt("REFECTORY_HEALTH_ERROR_CAP", c.HealthErrorCap)

	c.HeartbeatRetentionDays = getenvInt("REFECTORY_HEARTBEAT_RETENTION_DAYS", c.HeartbeatRetentionDays)
	c.PruneIntervalHours = getenvInt("REFECTORY_PRUNE_INTERVAL_HOURS", c.PruneIntervalHours)
}

// Validate parses the window, time point and timezone settings and rejects
// values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Store != StoreSQLite && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("store: unknown backend %q", c.Store))
	}
	if c.Store == StoreSQLite && strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path: required for sqlite store"))
	}

	sched, err := window.ParseSchedule(c.SwipeWindows)
	if err != nil {
		errs = append(errs, fmt.Errorf("swipe_windows: %w", err))
	}
	c.schedule = sched

	points, err := window.ParseTimePoints(c.TimePointA, c.TimePointB, c.TimePointC)
	if err != nil {
		errs = append(errs, fmt.Errorf("time points: %w", err))
	}
	c.points = points

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	c.location = loc

	for name, v := range map[string]int{
		"batch_size":       c.BatchSize,
		"max_workers":      c.MaxWorkers,
		"sheet_cache_size": c.SheetCacheSize,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", name, v))
		}
	}
	if c.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("accept_rate: must not be negative, got %g", c.AcceptRate))
	}

	return errors.Join(errs...)
}

func (c Config) Schedule() window.Schedule     { return c.schedule }
func (c Config) TimePoints() window.TimePoints { return c.points }
func (c Config) Location() *time.Location      { return c.location }

func (c Config) ShiftRule() window.ShiftRule {
	return window.NewShiftRule(c.AllWindowCodes, c.DayCodes)
}

func (c Config) BusyTimeout() time.Duration { return ms(c.BusyTimeoutMS) }
func (c Config) ReadTimeout() time.Duration { return ms(c.ReadTimeoutMS) }
func (c Config) LockTimeout() time.Duration { return ms(c.LockTimeoutMS) }

func (c Config) HeartbeatRetention() time.Duration {
	return time.Duration(c.HeartbeatRetentionDays) * 24 * time.Hour
}

func (c Config) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalHours) * time.Hour
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvCSV(key string, def []string) []string {
	if vs := splitCSV(os.Getenv(key)); vs != nil {
		return vs
	}
	return def
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

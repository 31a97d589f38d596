package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REFECTORY_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":88", cfg.ReaderAddr)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.HeartbeatRetention())

	at := func(h, m int) time.Time { return time.Date(2026, 2, 15, h, m, 0, 0, time.Local) }
	_, ok := cfg.Schedule().Allows(at(9, 20))
	assert.True(t, ok)
	_, ok = cfg.Schedule().Allows(at(10, 36))
	assert.False(t, ok)

	assert.Equal(t, window.Middle, cfg.TimePoints().At(at(9, 0)))
	assert.True(t, cfg.ShiftRule().Eligible("lds", window.Middle))
	assert.False(t, cfg.ShiftRule().Eligible("ds", window.Middle))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refectory.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
reader_addr = ":1088"
store = "memory"
swipe_windows = ["11:00-13:00"]
day_shifts = ["ds", "day"]
batch_size = 25
`), 0o600))

	t.Setenv("REFECTORY_CONFIG", path)
	t.Setenv("REFECTORY_BATCH_SIZE", "50")
	t.Setenv("REFECTORY_KNOWN_DEVICES", " 0123456789ABCDEF , ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":1088", cfg.ReaderAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, []string{"0123456789ABCDEF"}, cfg.KnownDevices)
	assert.Len(t, cfg.Schedule().Ranges(), 1)
	assert.True(t, cfg.ShiftRule().Eligible("day", window.First))
}

func TestLoad_InvalidValuesAreReported(t *testing.T) {
	t.Setenv("REFECTORY_CONFIG", "")
	t.Setenv("REFECTORY_STORE", "postgres")
	t.Setenv("REFECTORY_TIME_POINT_B", "02:00")
	t.Setenv("REFECTORY_SWIPE_WINDOWS", "10:00-09:00")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")
	assert.Contains(t, err.Error(), "time points")
	assert.Contains(t, err.Error(), "swipe_windows")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("REFECTORY_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestGetenvInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("REFECTORY_TEST_INT", "-3")
	assert.Equal(t, 7, getenvInt("REFECTORY_TEST_INT", 7))
	t.Setenv("REFECTORY_TEST_INT", "abc")
	assert.Equal(t, 7, getenvInt("REFECTORY_TEST_INT", 7))
	t.Setenv("REFECTORY_TEST_INT", "12")
	assert.Equal(t, 12, getenvInt("REFECTORY_TEST_INT", 7))
}

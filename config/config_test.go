package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/config"
	"github.com/vixen-gfx/vixen/event"
	"github.com/vixen-gfx/vixen/staging"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadOverridesOnlyProvidedSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vixen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[workers]
pool_size = 8

[staging]
large_chunk_count = 5
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, 5, cfg.StagingTierCounts[staging.TierLarge])
	// Untouched sections keep their defaults.
	assert.Equal(t, float64(60), cfg.TargetFrameRate)
	assert.Equal(t, 16*time.Millisecond, cfg.DefaultBudget)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vixen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[budget]
overrun_threshold = 0.5
`), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWatcherPublishesChangedOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vixen.toml")
	require.NoError(t, os.WriteFile(path, []byte("[workers]\npool_size = 1\n"), 0o644))

	bus := event.New()
	changed := make(chan config.Changed, 1)
	event.Subscribe(bus, func(c config.Changed) { changed <- c })

	w, err := config.NewWatcher(path, bus)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[workers]\npool_size = 2\n"), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, path, c.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Changed event")
	}
}

package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_MissingFileUsesDefaults(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "rules.json"), zerolog.Nop())

	r := w.Current()
	assert.True(t, r.AutomationActive)
	assert.Equal(t, 70.0, r.Buy.MinScore)

	reloaded, err := w.ReloadIfChanged()
	require.NoError(t, err)
	assert.False(t, reloaded)
}

func TestConfigWatcher_ReloadsOnMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	w := NewConfigWatcher(path, zerolog.Nop())

	r := Defaults()
	r.MaxTradesPerRun = 3
	require.NoError(t, w.Save(r))
	assert.Equal(t, 3, w.Current().MaxTradesPerRun)

	// Unchanged mtime: no reload.
	reloaded, err := w.ReloadIfChanged()
	require.NoError(t, err)
	assert.False(t, reloaded)

	// Bump mtime with modified content.
	r2 := Defaults()
	r2.MaxTradesPerRun = 9
	w2 := NewConfigWatcher(path, zerolog.Nop())
	require.NoError(t, w2.Save(r2))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	reloaded, err = w.ReloadIfChanged()
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, 9, w.Current().MaxTradesPerRun)
}

func TestConfigWatcher_CorruptFileKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	w := NewConfigWatcher(path, zerolog.Nop())
	require.NoError(t, w.Save(Defaults()))

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err := w.ReloadIfChanged()
	require.Error(t, err)

	// The previous snapshot stays active.
	assert.True(t, w.Current().AutomationActive)
	assert.Equal(t, 5, w.Current().MaxTradesPerRun)
}

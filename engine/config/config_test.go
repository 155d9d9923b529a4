package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Resolution.Width = 0
	cfg.Bloom.Passes = 0
	cfg.Draw.Origin = "center"
	cfg.Screen.Gamma = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"resolution", "bloom.passes", "draw.origin", "screen.gamma"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSectionReturnsCopy(t *testing.T) {
	cfg := Default()
	v, err := cfg.Section(SectionBloom)
	require.NoError(t, err)

	b := v.(Bloom)
	b.Passes = 99
	assert.Equal(t, 5, cfg.Bloom.Passes)

	_, err = cfg.Section("nope")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestDecodeTOMLOverDefaults(t *testing.T) {
	data := []byte(`
[draw]
origin = "bottom-left"
sort_order = "descending"

[bloom]
passes = 3

[lighting]
ambient = [0.2, 0.2, 0.3, 1.0]
`)
	cfg, err := Decode(data, ".toml")
	require.NoError(t, err)

	assert.Equal(t, common.OriginBottomLeft, cfg.Draw.Origin)
	assert.Equal(t, batch.Descending, cfg.Draw.SortOrder)
	assert.Equal(t, 3, cfg.Bloom.Passes)
	assert.Equal(t, common.RGBA(0.2, 0.2, 0.3, 1), cfg.Lighting.Ambient)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Bloom.Threshold, cfg.Bloom.Threshold)
	assert.Equal(t, Default().Draw.InitialCapacity, cfg.Draw.InitialCapacity)
}

func TestDecodeYAML(t *testing.T) {
	data := []byte(`
features:
  bloom: false
postprocess:
  vignette: 0.4
`)
	cfg, err := Decode(data, ".yml")
	require.NoError(t, err)
	assert.False(t, cfg.Features.Bloom)
	assert.True(t, cfg.PostProcess.Active())
	assert.InDelta(t, 0.4, cfg.PostProcess.Vignette, 1e-6)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		ext  string
	}{
		{"unknown extension", "", ".json"},
		{"unknown toml key", "[bloom]\nwhatever = 1\n", ".toml"},
		{"invalid value", "[bloom]\npasses = 40\n", ".toml"},
		{"unknown yaml key", "bloom:\n  whatever: 1\n", ".yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.ext)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bloom]\npasses = 2\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []Config
	)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg Config, err error) {
			if err != nil {
				return
			}
			mu.Lock()
			seen = append(seen, cfg)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[bloom]\npasses = 7\n"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1].Bloom.Passes == 7
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

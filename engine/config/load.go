package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file layered over Default. The format is chosen by extension: .toml, .yaml or
// .yml. Keys absent from the file keep their default value.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - Config: the validated configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode parses configuration bytes layered over Default.
//
// Parameters:
//   - data: the encoded configuration
//   - ext: the format, ".toml", ".yaml" or ".yml"
//
// Returns:
//   - Config: the validated configuration
//   - error: a decode or validation error
func Decode(data []byte, ext string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode toml: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("config: unsupported format %q", ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// watchDebounce coalesces the burst of events editors produce for one save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands every result to onChange, blocking until ctx is done.
// Each reload replaces the whole configuration. The parent directory is watched so saves that replace the
// file by rename are seen.
//
// Parameters:
//   - ctx: cancels the watch
//   - path: the configuration file
//   - onChange: receives the reloaded configuration, or the error that prevented loading it
//
// Returns:
//   - error: a watcher setup error, or nil once ctx is done
func Watch(ctx context.Context, path string, onChange func(Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %q: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			common.Logger().Warn("config watcher error", "path", abs, "error", err)
		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				common.Logger().Warn("config reload failed", "path", abs, "error", err)
			} else {
				common.Logger().Info("config reloaded", "path", abs)
			}
			onChange(cfg, err)
		}
	}
}

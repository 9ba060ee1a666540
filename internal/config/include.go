package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// mergeWithIncludes merges path into v after the files named by its include
// list, depth first, so the including file wins on conflicts. Relative include
// paths resolve against the including file's directory; each file is merged
// once and cycles are rejected.
func mergeWithIncludes(v *viper.Viper, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	m := includeMerger{target: v, done: map[string]bool{}, open: map[string]bool{}}
	return m.merge(abs)
}

type includeMerger struct {
	target *viper.Viper
	done   map[string]bool
	open   map[string]bool
}

func (m *includeMerger) merge(path string) error {
	path = filepath.Clean(path)
	if m.open[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if m.done[path] {
		return nil
	}
	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	m.open[path] = true
	for _, inc := range file.GetStringSlice("include") {
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := m.merge(inc); err != nil {
			return err
		}
	}
	delete(m.open, path)
	m.done[path] = true

	settings := file.AllSettings()
	delete(settings, "include")
	return m.target.MergeConfigMap(settings)
}

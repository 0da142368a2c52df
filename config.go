package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig maps config.toml keys to serve task settings.  The file only supplies defaults: a flag
// given on the command line always wins.
type fileConfig struct {
	Browser        string   `toml:"browser"`
	HighlightTheme string   `toml:"highlight_theme"`
	CustomCSS      []string `toml:"custom_css"`
	Renderer       string   `toml:"renderer"`
	Format         string   `toml:"format"`
	WorkingDir     string   `toml:"working_directory"`
}

// applyFileConfig overlays defaults from the given TOML file, or from the user config directory when
// no path was supplied.  A missing default file is fine; a missing explicit file is not.
func applyFileConfig(path string) error {
	if path == `` {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, `composer`, `config.toml`)
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf(`%w while loading config %q`, err, path)
	}

	if browserCmd == `` && meta.IsDefined(`browser`) {
		browserCmd = strings.TrimSpace(raw.Browser)
	}
	if theme == `` && meta.IsDefined(`highlight_theme`) {
		theme = strings.TrimSpace(raw.HighlightTheme)
	}
	if customCSS == `` && meta.IsDefined(`custom_css`) {
		customCSS = strings.Join(raw.CustomCSS, `,`)
	}
	if rendererCmd == `` && meta.IsDefined(`renderer`) {
		rendererCmd = strings.TrimSpace(raw.Renderer)
	}
	if format == `` && meta.IsDefined(`format`) {
		format = strings.TrimSpace(raw.Format)
	}
	if workingDir == `` && meta.IsDefined(`working_directory`) {
		workingDir = strings.TrimSpace(raw.WorkingDir)
	}
	return nil
}

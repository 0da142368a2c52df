package main

import (
	"os"
	"path/filepath"
	"testing"
)

func resetServeFlags() {
	browserCmd, theme, customCSS, rendererCmd, format, workingDir = ``, ``, ``, ``, ``, ``
}

func TestApplyFileConfig(t *testing.T) {
	resetServeFlags()
	defer resetServeFlags()

	path := filepath.Join(t.TempDir(), `config.toml`)
	content := `
browser = "firefox --private-window"
highlight_theme = "monokai"
custom_css = ["/style.css", "https://example.com/md.css"]
renderer = "pandoc -f markdown -t html"
format = "json"
working_directory = "/srv/docs"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := applyFileConfig(path); err != nil {
		t.Fatal(err)
	}
	if browserCmd != `firefox --private-window` {
		t.Fatalf(`unexpected browser: %q`, browserCmd)
	}
	if theme != `monokai` {
		t.Fatalf(`unexpected theme: %q`, theme)
	}
	if customCSS != `/style.css,https://example.com/md.css` {
		t.Fatalf(`unexpected css: %q`, customCSS)
	}
	if rendererCmd != `pandoc -f markdown -t html` {
		t.Fatalf(`unexpected renderer: %q`, rendererCmd)
	}
	if format != `json` {
		t.Fatalf(`unexpected format: %q`, format)
	}
	if workingDir != `/srv/docs` {
		t.Fatalf(`unexpected working directory: %q`, workingDir)
	}
}

func TestFlagsWinOverFileConfig(t *testing.T) {
	resetServeFlags()
	defer resetServeFlags()

	path := filepath.Join(t.TempDir(), `config.toml`)
	if err := os.WriteFile(path, []byte("highlight_theme = \"monokai\"\nformat = \"json\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	theme = `github-dark`
	if err := applyFileConfig(path); err != nil {
		t.Fatal(err)
	}
	if theme != `github-dark` {
		t.Fatalf(`file config overrode the flag: %q`, theme)
	}
	if format != `json` {
		t.Fatalf(`unset flag was not filled from the file: %q`, format)
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	resetServeFlags()
	defer resetServeFlags()

	err := applyFileConfig(filepath.Join(t.TempDir(), `nope.toml`))
	if err == nil {
		t.Fatal(`expected an error for a missing explicit config file`)
	}
}

package main

import (
	"runtime"
	"strings"
	"testing"

	"github.com/MJE43/cash-count-desktop/internal/i18n"
)

func TestLocaleName(t *testing.T) {
	for _, locale := range []string{"en-US", "ru-RU"} {
		name := localeName(locale)
		if name == "" || name == locale {
			t.Errorf("localeName(%q) = %q, want a display name", locale, name)
		}
	}
	if got := localeName("not a locale!"); got != "not a locale!" {
		t.Errorf("invalid locale should be returned as is, got %q", got)
	}
}

func TestFileURI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths only")
	}
	got := fileURI("/tmp/cash count/history.csv")
	if !strings.HasPrefix(got, "file:///tmp/") || !strings.Contains(got, "cash%20count") {
		t.Errorf("fileURI = %q", got)
	}
}

func TestWindowTitle(t *testing.T) {
	bundle, err := i18n.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	if got := windowTitle(bundle, "en-US"); got != appTitle {
		t.Errorf("en-US title = %q, want %q", got, appTitle)
	}
	if got := windowTitle(bundle, "ru-RU"); got != "Посчитай кэш" {
		t.Errorf("ru-RU title = %q", got)
	}
	if got := windowTitle(bundle, "xx-YY"); got != appTitle {
		t.Errorf("unknown locale title = %q, want %q", got, appTitle)
	}
}

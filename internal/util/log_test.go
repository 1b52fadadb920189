package util

import (
	"testing"

	"github.com/pterm/pterm"
)

func TestEnableDebug(t *testing.T) {
	saved := pterm.DefaultLogger.Level
	t.Cleanup(func() { pterm.DefaultLogger.Level = saved })

	pterm.DefaultLogger.Level = pterm.LogLevelInfo
	if DebugEnabled() {
		t.Fatal("debug reported enabled at info level")
	}

	EnableDebug()
	if !DebugEnabled() {
		t.Fatal("debug not enabled after EnableDebug")
	}
	LogDebug("debug output %d", 1)
}

package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	result := String()

	if !strings.Contains(result, "chatroute version") {
		t.Errorf("String() = %q, should contain 'chatroute version'", result)
	}
	if !strings.Contains(result, Version) {
		t.Errorf("String() = %q, should contain version %q", result, Version)
	}
	if !strings.Contains(result, "built "+BuildTime) {
		t.Errorf("String() = %q, should contain build time %q", result, BuildTime)
	}
}

func TestString_ReflectsLdflagsOverrides(t *testing.T) {
	origVersion, origBuild := Version, BuildTime
	t.Cleanup(func() { Version, BuildTime = origVersion, origBuild })

	Version = "1.4.0"
	BuildTime = "2026-10-01T00:00:00Z"

	want := "chatroute version 1.4.0 (built 2026-10-01T00:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

package version

import (
	"strings"
	"testing"
)

func TestString_ContainsBuildInfo(t *testing.T) {
	original := [3]string{version, commit, date}
	t.Cleanup(func() { version, commit, date = original[0], original[1], original[2] })
	version, commit, date = "1.4.0", "a1b2c3d", "2026-10-01"

	got := String()
	for _, part := range []string{"storefront", "version=1.4.0", "commit=a1b2c3d", "date=2026-10-01"} {
		if !strings.Contains(got, part) {
			t.Fatalf("String() = %q, missing %q", got, part)
		}
	}
	if Version() != "1.4.0" {
		t.Fatalf("Version() = %q", Version())
	}
}

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), Service+"/"+Version(); got != want {
		t.Fatalf("UserAgent() = %q, want %q", got, want)
	}
}

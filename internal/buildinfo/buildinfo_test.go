package buildinfo

import (
	"strings"
	"testing"
)

func TestShortPrefersVersion(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.2.3"
	if got := Short(); got != "v1.2.3" {
		t.Fatalf("Short() = %q", got)
	}
}

func TestShortCommitTruncates(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit = %q", got)
	}
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "v0.1.0", Commit: "deadbeefcafe0000", Date: "2024-01-01", Modified: true}.String()
	for _, want := range []string{"titan v0.1.0", "deadbeefcafe+dirty", "2024-01-01"} {
		if !strings.Contains(s, want) {
			t.Fatalf("%q missing %q", s, want)
		}
	}
}

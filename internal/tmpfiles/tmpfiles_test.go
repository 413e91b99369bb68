package tmpfiles

import (
	"strings"
	"testing"
)

func TestParseHonoursOnlySymlinkDirectives(t *testing.T) {
	input := `# a comment
L+ /etc/resolv.conf - - - - /run/systemd/resolve/stub-resolv.conf
d /run/user 0755 - - -
L+ relative-target - - - - /nix/store/xyz
L+ /bin/sh - - - - /nix/store/abc/sw/bin/sh
L+ /too/few/fields - - -
`

	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []Directive{
		{Target: "etc/resolv.conf", Source: "/run/systemd/resolve/stub-resolv.conf"},
		{Target: "bin/sh", Source: "/nix/store/abc/sw/bin/sh"},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d directives, want %d: %+v", len(got), len(want), got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("directive %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseEmptyInput(t *testing.T) {
	got, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("got %d directives, want 0", len(got))
	}
}

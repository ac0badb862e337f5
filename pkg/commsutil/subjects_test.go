package commsutil

import "testing"

func TestBuildInboxSubject(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"simple", "r1", "bus.runtime.r1"},
		{"dotted id", "host.local", "bus.runtime.host_local"},
		{"wildcards", "a*b>c", "bus.runtime.a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildInboxSubject(tt.id); got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildInboxSubject(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestBuildCallSubject(t *testing.T) {
	if got := BuildCallSubject("r1"); got != "bus.runtime.r1.call" {
		t.Errorf("commsutil:subjects_test - BuildCallSubject = %q", got)
	}
}

func TestBuildStateSubject(t *testing.T) {
	if got := BuildStateSubject("r1"); got != "bus.state.r1" {
		t.Errorf("commsutil:subjects_test - BuildStateSubject = %q", got)
	}
}

package codec

import "testing"

func TestGetID(t *testing.T) {
	tests := []struct {
		name     string
		fullname string
		wantID   string
		wantOK   bool
	}{
		{"qualified", "cam@r1", "r1", true},
		{"unqualified", "cam", "", false},
		{"last separator wins", "a@b@r2", "r2", true},
		{"empty id", "cam@", "", true},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := GetID(tt.fullname)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("codec:address_test - GetID(%q) = (%q, %v), want (%q, %v)", tt.fullname, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestGetName(t *testing.T) {
	if got := GetName("cam@r1"); got != "cam" {
		t.Errorf("codec:address_test - GetName = %q, want cam", got)
	}
	if got := GetName("cam"); got != "cam" {
		t.Errorf("codec:address_test - GetName = %q, want cam", got)
	}
}

func TestGetFullName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		localID string
		want    string
	}{
		{"unqualified gets local id", "cam", "r1", "cam@r1"},
		{"qualified unchanged", "cam@r2", "r1", "cam@r2"},
		{"empty stays empty", "", "r1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFullName(tt.input, tt.localID); got != tt.want {
				t.Errorf("codec:address_test - GetFullName(%q, %q) = %q, want %q", tt.input, tt.localID, got, tt.want)
			}
		})
	}
}

func TestAddressingRoundTrip(t *testing.T) {
	for _, name := range []string{"cam", "runtime", "speech-1", "x_y"} {
		id, ok := GetID(GetFullName(name, "host-7"))
		if !ok || id != "host-7" {
			t.Errorf("codec:address_test - round trip for %q gave (%q, %v)", name, id, ok)
		}
		full := name + "@other"
		if got := GetFullName(full, "host-7"); got != full {
			t.Errorf("codec:address_test - GetFullName should be identity for %q, got %q", full, got)
		}
	}
}

func TestGetCallbackTopicName(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"publishDetection", "onDetection"},
		{"getRepo", "onRepo"},
		{"broadcastState", "onBroadcastState"},
		{"publishStatus", "onStatus"},
		{"getRegistry", "onRegistry"},
		{"released", "onReleased"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := GetCallbackTopicName(tt.method); got != tt.want {
				t.Errorf("codec:address_test - GetCallbackTopicName(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizeMethod(t *testing.T) {
	spellings := []string{"setCamera", "SetCamera", "set-camera", "set_camera", "SET_CAMERA"}
	for _, s := range spellings {
		if got := NormalizeMethod(s); got != "setcamera" {
			t.Errorf("codec:address_test - NormalizeMethod(%q) = %q, want setcamera", s, got)
		}
	}
}

package commsutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/morezero/servicebus/pkg/message"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "map", input: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{name: "slice", input: []int{1, 2, 3}, want: "[1,2,3]"},
		{name: "nil", input: nil, want: "null"},
		{name: "channel is not serializable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("commsutil:codec_test - EncodePayload() = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestEncodeMessage_NilDataBecomesArray(t *testing.T) {
	msg := &message.Message{Name: "cam@r1", Method: "stop"}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"data":[]`) {
		t.Errorf("commsutil:codec_test - expected empty data array in %s", data)
	}
	if msg.Data != nil {
		t.Error("commsutil:codec_test - EncodeMessage must not mutate its input")
	}
}

func TestEncodeMessage_Nil(t *testing.T) {
	if _, err := EncodeMessage(nil); err == nil {
		t.Error("commsutil:codec_test - expected error for nil message")
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantArgs int
		wantName string
		wantMeth string
	}{
		{name: "full", data: `{"msgId":"1","name":"cam@r1","method":"setCamera","sender":"ui@r2","data":[2]}`, wantArgs: 1, wantName: "cam@r1", wantMeth: "setCamera"},
		{name: "data omitted", data: `{"name":"cam@r1","method":"stop"}`, wantArgs: 0, wantName: "cam@r1", wantMeth: "stop"},
		{name: "data null", data: `{"name":"cam@r1","method":"stop","data":null}`, wantArgs: 0, wantName: "cam@r1", wantMeth: "stop"},
		{name: "invalid json", data: `{invalid}`, wantErr: true},
		{name: "missing method", data: `{"name":"cam@r1"}`, wantErr: true},
		{name: "missing name", data: `{"method":"x"}`, wantErr: true},
		{name: "empty", data: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, message.ErrMalformed) {
					t.Fatalf("commsutil:codec_test - expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if msg.Data == nil || len(msg.Data) != tt.wantArgs {
				t.Errorf("commsutil:codec_test - Data = %v, want %d args", msg.Data, tt.wantArgs)
			}
			if msg.Name != tt.wantName || msg.Method != tt.wantMeth {
				t.Errorf("commsutil:codec_test - got %s.%s", msg.Name, msg.Method)
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	in := message.New("cam@r1", "setCamera", float64(2), "hd")
	in.Sender = "ui@r2"
	data, err := EncodeMessage(in)
	if err != nil {
		t.Fatalf("commsutil:codec_test - encode failed: %v", err)
	}
	out, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("commsutil:codec_test - decode failed: %v", err)
	}
	if out.Sender != "ui@r2" || len(out.Data) != 2 || out.Data[0] != float64(2) || out.Data[1] != "hd" {
		t.Errorf("commsutil:codec_test - round trip mismatch: %+v", out)
	}
}

package transport

import (
	"encoding/json"
	"testing"
)

func TestNewFrameMarshal(t *testing.T) {
	f := NewFrame(TypeData, map[string]any{"hello": "world"})
	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode marshaled frame: %v", err)
	}
	if decoded["type"] != TypeData {
		t.Errorf("type = %v, want %v", decoded["type"], TypeData)
	}
	if decoded["timestamp"] == nil || decoded["timestamp"] == "" {
		t.Error("expected a non-empty timestamp")
	}
}

func TestWithTopicAndRequestID(t *testing.T) {
	f := NewFrame(TypeData, nil).WithTopic("market.*").WithRequestID("req-1")
	if f.Topic != "market.*" {
		t.Errorf("Topic = %q, want market.*", f.Topic)
	}
	if f.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", f.RequestID)
	}
}

func TestDurableFlag(t *testing.T) {
	f := NewFrame(TypeData, nil)
	if f.IsDurable() {
		t.Fatal("expected a new frame to be non-durable by default")
	}
	f.Durable()
	if !f.IsDurable() {
		t.Fatal("expected Durable() to mark the frame durable")
	}
}

func TestErrorFrame(t *testing.T) {
	f := ErrorFrame(4000, "bad request")
	if f.Type != TypeError {
		t.Errorf("Type = %q, want %q", f.Type, TypeError)
	}
	if f.Code != 4000 {
		t.Errorf("Code = %d, want 4000", f.Code)
	}
	data, _ := json.Marshal(f.Data)
	var payload map[string]string
	json.Unmarshal(data, &payload)
	if payload["message"] != "bad request" {
		t.Errorf("message = %q, want %q", payload["message"], "bad request")
	}
}

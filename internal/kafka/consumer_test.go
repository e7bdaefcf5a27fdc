package kafka

import (
	"strings"
	"testing"

	"github.com/shubhsaxena/property-search/internal/models"
)

func TestDecodeChangeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"valid update", `{"type":"UPDATE","property_id":"p-1","property":{"property_id":"p-1"},"version":3}`, ""},
		{"valid delete", `{"type":"DELETE","property_id":"p-1"}`, ""},
		{"malformed", `{"type":`, "unmarshal"},
		{"missing id", `{"type":"DELETE"}`, "missing property_id"},
		{"create without body", `{"type":"CREATE","property_id":"p-1"}`, "without property body"},
		{"unknown type", `{"type":"UPSERT","property_id":"p-1"}`, "unknown event type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeChangeEvent([]byte(tt.payload))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if ev.PropertyID != "p-1" {
					t.Errorf("expected property p-1, got %q", ev.PropertyID)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChangeMessage_KeyedByProperty(t *testing.T) {
	msg, err := changeMessage(&models.ChangeEvent{Type: "DELETE", PropertyID: "p-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.Key) != "p-9" {
		t.Errorf("expected key p-9, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "DELETE" {
		t.Errorf("unexpected headers %v", msg.Headers)
	}
}

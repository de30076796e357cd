package db

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestHealthResponse_Healthy(t *testing.T) {
	health := PoolHealth{
		TotalConns:    4,
		IdleConns:     3,
		AcquiredConns: 1,
		MaxConns:      10,
		AcquireCount:  250,
		WaitDuration:  "12ms",
	}

	code, body := healthResponse(health, nil, 3*time.Millisecond)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if _, hasErr := body["error"]; hasErr {
		t.Error("healthy response must not carry an error field")
	}
	if body["latency_ms"] != int64(3) {
		t.Errorf("expected latency_ms 3, got %v", body["latency_ms"])
	}
	if body["pool"].(PoolHealth).IdleConns != 3 {
		t.Errorf("expected pool counters echoed back, got %+v", body["pool"])
	}
}

func TestHealthResponse_PingFailure(t *testing.T) {
	code, body := healthResponse(PoolHealth{MaxConns: 10}, errors.New("connection refused"), 5*time.Second)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy status, got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected ping error surfaced, got %v", body["error"])
	}
}

func TestPoolHealth_JSONShape(t *testing.T) {
	raw, err := json.Marshal(PoolHealth{
		TotalConns:   2,
		MaxConns:     10,
		AcquireCount: 7,
		WaitDuration: "1.5ms",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "wait_duration"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in pool health JSON", key)
		}
	}
}

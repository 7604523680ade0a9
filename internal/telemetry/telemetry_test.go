package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestSetupWithoutCollector(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{ServiceName: "jobtracker"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	_, span := GetTracer("test").Start(context.Background(), "noop")
	span.SetAttributes(String("k", "v"), Int("n", 1))
	span.End()
}

func TestAttributes(t *testing.T) {
	if kv := String("job.id", "j1"); string(kv.Key) != "job.id" || kv.Value.AsString() != "j1" {
		t.Fatalf("unexpected attribute %v", kv)
	}
	if kv := Int("jobs.count", 3); kv.Value.AsInt64() != 3 {
		t.Fatalf("unexpected attribute %v", kv)
	}
}

package observability

import (
	"context"
	"testing"
)

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		logger, err := NewLogger("test", "debug", dev, false)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if !logger.Core().Enabled(-1) {
			t.Error("expected debug level to be enabled")
		}
	}

	if _, err := NewLogger("test", "loud", false, false); err == nil {
		t.Error("expected invalid level to be rejected")
	}
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Settings{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog(domain.Part{ID: "p1", Name: "Belt", Active: true})
	ctx := context.Background()

	if p, _ := c.GetPart(ctx, "p1"); p == nil || p.Name != "Belt" {
		t.Fatalf("unexpected part: %+v", p)
	}
	if p, _ := c.GetPart(ctx, "p2"); p != nil {
		t.Errorf("expected nil, got %+v", p)
	}

	c.Put(domain.Part{ID: "p2", Name: "Hose"})
	if p, _ := c.GetPart(ctx, "p2"); p == nil {
		t.Error("expected p2 after Put")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts.json")
	os.WriteFile(path, []byte(`{"items":[{"id":"p1","name":"Spark plug","unitCost":3}]}`), 0o600)

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	p, _ := c.GetPart(context.Background(), "p1")
	if p == nil || p.Name != "Spark plug" || !p.Active {
		t.Errorf("unexpected part: %+v", p)
	}
}

package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()
	d.PutVehicle(domain.Vehicle{ID: "v1", ClientID: "c1", Model: "Corolla"})
	d.PutVehicle(domain.Vehicle{ID: "v2", ClientID: "c2", Model: " corolla "})
	d.PutVehicle(domain.Vehicle{ID: "v3", ClientID: "c1", Model: "Civic"})
	d.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-1", ServiceOrderID: "so-1", VehicleID: "v1", Description: "Brake  service"})
	d.PutServiceOrderItem(domain.ServiceOrderItem{ID: "soi-2", ServiceOrderID: "so-2", VehicleID: "v2", Description: "brake service"})

	if got, _ := d.VehiclesByModel(ctx, "COROLLA"); len(got) != 2 {
		t.Errorf("expected 2 vehicles by model, got %d", len(got))
	}
	if got, _ := d.ClientVehicles(ctx, "c1"); len(got) != 2 || got[0].ID != "v1" {
		t.Errorf("unexpected client vehicles: %+v", got)
	}
	if got, _ := d.ItemsByDescription(ctx, "Brake service"); len(got) != 2 {
		t.Errorf("expected 2 similar items, got %d", len(got))
	}
	if got, _ := d.ItemsByDescription(ctx, "  "); len(got) != 0 {
		t.Errorf("blank description matched %d items", len(got))
	}
	if got, _ := d.ServiceOrderItems(ctx, "so-1"); len(got) != 1 {
		t.Errorf("expected 1 item on so-1, got %d", len(got))
	}
	if got, _ := d.Vehicle(ctx, "missing"); got != nil {
		t.Errorf("expected nil vehicle, got %+v", got)
	}
	if got, _ := d.ServiceOrderItem(ctx, "soi-1"); got == nil || got.VehicleID != "v1" {
		t.Errorf("unexpected service order item: %+v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.json")
	os.WriteFile(path, []byte(`{
		"vehicles": [{"id": "v1", "clientId": "c1", "model": "Hilux"}],
		"serviceOrderItems": [{"id": "soi-1", "serviceOrderId": "so-1", "vehicleId": "v1", "description": "Oil change"}]
	}`), 0o600)

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if v, _ := d.Vehicle(context.Background(), "v1"); v == nil || v.Model != "Hilux" {
		t.Errorf("unexpected vehicle: %+v", v)
	}
}

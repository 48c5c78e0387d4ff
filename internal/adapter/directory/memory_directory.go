package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// MemoryDirectory mirrors the vehicles and service-order items the ledger
// needs to attribute movements.
type MemoryDirectory struct {
	mu       sync.RWMutex
	vehicles map[string]domain.Vehicle
	items    map[string]domain.ServiceOrderItem
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		vehicles: make(map[string]domain.Vehicle),
		items:    make(map[string]domain.ServiceOrderItem),
	}
}

type seedFile struct {
	Vehicles []struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
		Model    string `json:"model"`
	} `json:"vehicles"`
	ServiceOrderItems []struct {
		ID             string `json:"id"`
		ServiceOrderID string `json:"serviceOrderId"`
		VehicleID      string `json:"vehicleId"`
		Description    string `json:"description"`
	} `json:"serviceOrderItems"`
}

// LoadFile seeds a directory from a JSON export of vehicles and
// service-order items.
func LoadFile(path string) (*MemoryDirectory, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(body, &seed); err != nil {
		return nil, fmt.Errorf("decode directory file: %w", err)
	}

	d := NewMemoryDirectory()
	for _, v := range seed.Vehicles {
		d.PutVehicle(domain.Vehicle{ID: v.ID, ClientID: v.ClientID, Model: v.Model})
	}
	for _, it := range seed.ServiceOrderItems {
		d.PutServiceOrderItem(domain.ServiceOrderItem{
			ID:             it.ID,
			ServiceOrderID: it.ServiceOrderID,
			VehicleID:      it.VehicleID,
			Description:    it.Description,
		})
	}
	return d, nil
}

func (d *MemoryDirectory) PutVehicle(v domain.Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicles[v.ID] = v
}

func (d *MemoryDirectory) PutServiceOrderItem(it domain.ServiceOrderItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[it.ID] = it
}

func (d *MemoryDirectory) ServiceOrderItem(ctx context.Context, serviceOrderItemID string) (*domain.ServiceOrderItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	it, ok := d.items[serviceOrderItemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (d *MemoryDirectory) ServiceOrderItems(ctx context.Context, serviceOrderID string) ([]domain.ServiceOrderItem, error) {
	return d.selectItems(func(it domain.ServiceOrderItem) bool { return it.ServiceOrderID == serviceOrderID }), nil
}

// ItemsByDescription matches descriptions case-insensitively after trimming.
func (d *MemoryDirectory) ItemsByDescription(ctx context.Context, description string) ([]domain.ServiceOrderItem, error) {
	want := normalizeText(description)
	if want == "" {
		return nil, nil
	}
	return d.selectItems(func(it domain.ServiceOrderItem) bool { return normalizeText(it.Description) == want }), nil
}

func (d *MemoryDirectory) Vehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.vehicles[vehicleID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (d *MemoryDirectory) VehiclesByModel(ctx context.Context, model string) ([]domain.Vehicle, error) {
	want := normalizeText(model)
	return d.selectVehicles(func(v domain.Vehicle) bool { return want != "" && normalizeText(v.Model) == want }), nil
}

func (d *MemoryDirectory) ClientVehicles(ctx context.Context, clientID string) ([]domain.Vehicle, error) {
	return d.selectVehicles(func(v domain.Vehicle) bool { return v.ClientID == clientID }), nil
}

func (d *MemoryDirectory) selectItems(keep func(domain.ServiceOrderItem) bool) []domain.ServiceOrderItem {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []domain.ServiceOrderItem{}
	for _, it := range d.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *MemoryDirectory) selectVehicles(keep func(domain.Vehicle) bool) []domain.Vehicle {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []domain.Vehicle{}
	for _, v := range d.vehicles {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

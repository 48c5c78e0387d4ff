package service

import (
	"context"
	"testing"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

func TestCriticalPartsReport_Severities(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "A1", 2, 5)  // 2 < 5
	env.createItem(t, "oil-filter", "A2", 6, 5) // 6 < 7.5
	env.createItem(t, "spark-plug", "A3", 8, 5) // 8 >= 7.5

	report, err := env.critical.GetCriticalPartsReport(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if report.Critical != 1 || report.Warning != 1 || report.Stable != 1 {
		t.Errorf("expected 1/1/1, got %d/%d/%d", report.Critical, report.Warning, report.Stable)
	}
	want := []struct {
		partID   string
		severity domain.Severity
	}{
		{"brake-pad", domain.SeverityCritical},
		{"oil-filter", domain.SeverityWarning},
		{"spark-plug", domain.SeverityStable},
	}
	if len(report.Parts) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(report.Parts))
	}
	for i, w := range want {
		row := report.Parts[i]
		if row.PartID != w.partID || row.Severity != w.severity {
			t.Errorf("row %d: expected %s %s, got %s %s", i, w.partID, w.severity, row.PartID, row.Severity)
		}
	}
	if report.Parts[0].Shortfall != 3 || report.Parts[0].PartName != "Brake pad" || report.Parts[0].SKU != "BP-01" {
		t.Errorf("unexpected critical row %+v", report.Parts[0])
	}
}

func TestCriticalPartsReport_ConfigurableMultiplier(t *testing.T) {
	env := newTestEnv(t, Options{WarningMultiplier: 2})
	env.createItem(t, "brake-pad", "A1", 9, 5)

	report, err := env.critical.GetCriticalPartsReport(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Parts[0].Severity != domain.SeverityWarning {
		t.Errorf("expected WARNING with multiplier 2, got %s", report.Parts[0].Severity)
	}
}

func TestCriticalPartsReport_TracksConsumptionAndSkipsInactive(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createItem(t, "brake-pad", "A1", 10, 5)
	gone := env.createItem(t, "oil-filter", "A2", 0, 5)
	env.reserve(t, "soi-1", "brake-pad", 4)
	env.consume(t, "soi-1", "brake-pad", 4)

	if _, err := env.items.DeleteItem(context.Background(), gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	report, err := env.critical.GetCriticalPartsReport(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Parts) != 1 {
		t.Fatalf("expected only the active item, got %d rows", len(report.Parts))
	}
	row := report.Parts[0]
	if row.TotalConsumed != 4 || row.AvailableQuantity != 6 || row.TotalQuantity != 6 {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Severity != domain.SeverityWarning {
		t.Errorf("expected WARNING for 6 of minimum 5, got %s", row.Severity)
	}
}

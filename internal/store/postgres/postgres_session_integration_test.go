package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, ctx
}

func TestOpenSessionSecondOpenReturnsExisting(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	stamp := time.Now().UnixNano()
	locationID := fmt.Sprintf("loc-it-%d", stamp)

	reg, err := s.CreateRegister(ctx, domain.Register{
		LocationID:   locationID,
		RegisterName: "Integration Counter",
		Status:       domain.RegisterStatusActive,
	})
	if err != nil {
		t.Fatalf("create register: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE register_id = $1`, reg.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM registers WHERE id = $1`, reg.ID)
	})

	first, created, err := s.OpenSession(ctx, domain.DrawerSession{
		RegisterID:  reg.ID,
		LocationID:  locationID,
		OpenedBy:    "it-cashier",
		OpeningCash: decimal.NewFromInt(100),
		OpenedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if !created {
		t.Fatalf("expected first open to create a session")
	}

	second, created, err := s.OpenSession(ctx, domain.DrawerSession{
		RegisterID:  reg.ID,
		LocationID:  locationID,
		OpenedBy:    "it-cashier",
		OpeningCash: decimal.NewFromInt(500),
		OpenedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if created {
		t.Fatalf("expected second open to land on the existing session")
	}
	if second.ID != first.ID {
		t.Fatalf("expected session %s, got %s", first.ID, second.ID)
	}
	if !second.OpeningCash.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("existing session must keep its opening cash, got %s", second.OpeningCash)
	}

	closed, alreadyClosed, err := s.CloseSession(ctx, first.ID, decimal.NewFromInt(100), "it-cashier", "", time.Now().UTC())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if alreadyClosed {
		t.Fatalf("expected first close to settle the session")
	}
	if closed.CloseStatus != domain.CloseStatusBalanced {
		t.Fatalf("expected balanced close, got %s", closed.CloseStatus)
	}

	// The register is reopenable once its open session is gone.
	_, created, err = s.OpenSession(ctx, domain.DrawerSession{
		RegisterID:  reg.ID,
		LocationID:  locationID,
		OpenedBy:    "it-cashier",
		OpeningCash: decimal.NewFromInt(50),
		OpenedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh session after close")
	}
}

func TestAdjustInventoryRejectsOverdraw(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	locationID := fmt.Sprintf("loc-it-%d", stamp)
	at := time.Now().UTC()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE product_id = $1`, productID)
	})

	if _, err := s.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   3,
	}, "it-manager", at); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := s.AdjustInventory(ctx, domain.InventoryAdjustRequest{
		ProductID:    productID,
		LocationID:   locationID,
		Delta:        -5,
		MovementType: domain.MovementTypeAdjustment,
		Reason:       "integration overdraw",
	}, "it-manager", at)
	if !errors.Is(err, store.ErrDebitExceedsStock) {
		t.Fatalf("expected debit-exceeds-stock, got %v", err)
	}

	snap, err := s.GetInventory(ctx, productID, locationID)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if snap.Quantity != 3 {
		t.Fatalf("rejected adjust must leave quantity at 3, got %d", snap.Quantity)
	}

	var movementCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM inventory_movements
		WHERE product_id = $1
	`, productID).Scan(&movementCount); err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movementCount != 1 {
		t.Fatalf("expected only the initialize movement, got %d", movementCount)
	}
}

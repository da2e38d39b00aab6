package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyCashDifference(t *testing.T) {
	if got := ClassifyCashDifference(decimal.Zero); got != CloseStatusBalanced {
		t.Fatalf("expected balanced for zero difference, got %s", got)
	}
	if got := ClassifyCashDifference(decimal.NewFromFloat(0.01)); got != CloseStatusOver {
		t.Fatalf("expected over for positive difference, got %s", got)
	}
	if got := ClassifyCashDifference(decimal.NewFromFloat(-0.01)); got != CloseStatusShort {
		t.Fatalf("expected short for negative difference, got %s", got)
	}
}

func TestRollupPurchaseOrderStatus(t *testing.T) {
	items := []PurchaseOrderItem{
		{Quantity: 10, QuantityReceived: 0},
		{Quantity: 5, QuantityReceived: 0},
	}
	if got := RollupPurchaseOrderStatus(items); got != POStatusOrdered {
		t.Fatalf("expected ordered with nothing received, got %s", got)
	}

	items[0].QuantityReceived = 4
	if got := RollupPurchaseOrderStatus(items); got != POStatusPartiallyReceived {
		t.Fatalf("expected partially_received, got %s", got)
	}

	items[0].QuantityReceived = 10
	items[1].QuantityReceived = 5
	if got := RollupPurchaseOrderStatus(items); got != POStatusReceived {
		t.Fatalf("expected received when every line is full, got %s", got)
	}
}

func TestValidMovementType(t *testing.T) {
	for _, mt := range []string{MovementTypePurchase, MovementTypeSale, MovementTypeAdjustment, MovementTypePOReceipt, MovementTypeVoid, MovementTypeTransfer} {
		if !ValidMovementType(mt) {
			t.Fatalf("expected %s to be valid", mt)
		}
	}
	if ValidMovementType("teleport") {
		t.Fatalf("expected unknown movement type to be invalid")
	}
}

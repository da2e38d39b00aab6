package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/floradistro/websitev2-sub022/internal/cache"
	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
	"github.com/floradistro/websitev2-sub022/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopSessionCache{}, "loc-main")
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: "manager"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func cash(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func mustCreateRegister(t *testing.T, svc *Service, name string) domain.Register {
	t.Helper()
	reg, err := svc.CreateRegister(managerCtx(), domain.RegisterCreateRequest{
		LocationID:   "loc-main",
		RegisterName: name,
	})
	if err != nil {
		t.Fatalf("create register failed: %v", err)
	}
	return reg
}

func TestClaimWithoutBindingReturnsAvailableRegisters(t *testing.T) {
	svc := newTestService()
	mustCreateRegister(t, svc, "Front Counter")
	mustCreateRegister(t, svc, "Back Counter")

	result, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID:   "device-unknown",
		LocationID: "loc-main",
	})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !result.NeedsAssignment {
		t.Fatalf("expected needs-assignment response for unbound device")
	}
	if len(result.AvailableRegisters) != 2 {
		t.Fatalf("expected 2 available registers, got %d", len(result.AvailableRegisters))
	}
	for _, reg := range result.AvailableRegisters {
		if reg.BoundDeviceID != "" {
			t.Fatalf("needs-assignment path must not bind anything, register %s got device %q", reg.ID, reg.BoundDeviceID)
		}
	}
}

func TestClaimExplicitRegisterLastWriterWins(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	first, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID:   "device-a",
		LocationID: "loc-main",
		RegisterID: reg.ID,
	})
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if first.Register.BoundDeviceID != "device-a" {
		t.Fatalf("expected device-a bound, got %q", first.Register.BoundDeviceID)
	}

	second, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID:   "device-b",
		LocationID: "loc-main",
		RegisterID: reg.ID,
	})
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if second.Register.BoundDeviceID != "device-b" {
		t.Fatalf("expected last writer device-b bound, got %q", second.Register.BoundDeviceID)
	}

	recognized, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID:   "device-b",
		LocationID: "loc-main",
	})
	if err != nil {
		t.Fatalf("recognition claim failed: %v", err)
	}
	if recognized.NeedsAssignment || recognized.Register == nil || recognized.Register.ID != reg.ID {
		t.Fatalf("expected device-b to be recognized on register %s", reg.ID)
	}
}

func TestClaimRegisterFromOtherLocationNotFound(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	_, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID:   "device-a",
		LocationID: "loc-warehouse",
		RegisterID: reg.ID,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not-found for register outside the claim location, got %v", err)
	}
}

func TestClaimRequiresDeviceAndLocation(t *testing.T) {
	svc := newTestService()

	_, err := svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		LocationID: "loc-main",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected missing device_id to be rejected, got %v", err)
	}

	_, err = svc.ClaimRegister(cashierCtx(), domain.RegisterClaimRequest{
		DeviceID: "device-a",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected missing location_id to be rejected, got %v", err)
	}
}

func TestOpenSessionIsIdempotentPerRegister(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	first, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !first.Created {
		t.Fatalf("expected first open to create a session")
	}

	second, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(999),
	})
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if second.Created {
		t.Fatalf("expected second open to return the existing session")
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("expected same session, got %s and %s", first.Session.ID, second.Session.ID)
	}
	if !second.Session.OpeningCash.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("existing session must keep its opening cash, got %s", second.Session.OpeningCash)
	}
}

func TestCloseSessionBalancedWhenCountMatchesExpected(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	open, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, err = svc.RecordSale(cashierCtx(), open.Session.ID, domain.SaleAccrualRequest{
		Amount:     decimal.NewFromInt(250),
		CashAmount: decimal.NewFromInt(250),
		WalkIn:     true,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	closed, err := svc.CloseSession(cashierCtx(), open.Session.ID, domain.SessionCloseRequest{
		ClosingCash: cash(350),
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	sess := closed.Session
	if sess.ExpectedCash == nil || !sess.ExpectedCash.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("expected expected_cash 350, got %v", sess.ExpectedCash)
	}
	if sess.CashDifference == nil || !sess.CashDifference.IsZero() {
		t.Fatalf("expected zero cash difference, got %v", sess.CashDifference)
	}
	if sess.CloseStatus != domain.CloseStatusBalanced {
		t.Fatalf("expected balanced close, got %s", sess.CloseStatus)
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	open, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	first, err := svc.CloseSession(cashierCtx(), open.Session.ID, domain.SessionCloseRequest{
		ClosingCash: cash(90),
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if first.Session.CloseStatus != domain.CloseStatusShort {
		t.Fatalf("expected short close, got %s", first.Session.CloseStatus)
	}

	again, err := svc.CloseSession(cashierCtx(), open.Session.ID, domain.SessionCloseRequest{
		ClosingCash: cash(500),
	})
	if err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if !again.AlreadyClosed {
		t.Fatalf("expected second close to be a no-op")
	}
	if again.Session.ClosingCash == nil || !again.Session.ClosingCash.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("second close must return the stored summary, got closing cash %v", again.Session.ClosingCash)
	}
}

func TestCloseSessionRequiresClosingCash(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	open, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, err = svc.CloseSession(cashierCtx(), open.Session.ID, domain.SessionCloseRequest{})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected missing closing_cash to be rejected, got %v", err)
	}

	// An omitted count must not close the drawer as a counted zero.
	sess, err := svc.GetSession(cashierCtx(), open.Session.ID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess.Status != domain.SessionStatusOpen {
		t.Fatalf("session must stay open after rejected close, got %s", sess.Status)
	}
}

func TestReversalClampsTotalsAtZero(t *testing.T) {
	svc := newTestService()
	reg := mustCreateRegister(t, svc, "Front Counter")

	open, err := svc.OpenSession(cashierCtx(), domain.SessionOpenRequest{
		RegisterID:  reg.ID,
		OpeningCash: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	result, err := svc.RecordRefund(cashierCtx(), open.Session.ID, domain.ReversalAccrualRequest{
		Amount:     decimal.NewFromInt(50),
		CashAmount: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !result.Clamped {
		t.Fatalf("expected refund on empty session to be clamped")
	}
	if !result.Session.TotalSales.IsZero() || !result.Session.TotalCash.IsZero() {
		t.Fatalf("expected totals clamped at zero, got sales=%s cash=%s", result.Session.TotalSales, result.Session.TotalCash)
	}
	if result.Session.TotalTransactions != 0 {
		t.Fatalf("expected transaction count clamped at zero, got %d", result.Session.TotalTransactions)
	}
}

func TestAdjustRejectsDebitBelowZero(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	_, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	_, err = svc.AdjustInventory(ctx, domain.InventoryAdjustRequest{
		ProductID: "prod-a",
		Delta:     -5,
		Reason:    "damage",
	})
	if !errors.Is(err, store.ErrDebitExceedsStock) {
		t.Fatalf("expected debit-exceeds-stock, got %v", err)
	}

	snap, err := svc.GetInventory(ctx, "prod-a", "loc-main")
	if err != nil {
		t.Fatalf("get inventory failed: %v", err)
	}
	if snap.Quantity != 3 {
		t.Fatalf("rejected adjust must not change quantity, got %d", snap.Quantity)
	}

	movements, err := svc.ListMovements(ctx, "prod-a", "", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected only the initialize movement, got %d", len(movements))
	}
}

func TestTransferIsAllOrNothing(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", LocationID: "loc-main", Quantity: 3,
	}); err != nil {
		t.Fatalf("initialize source failed: %v", err)
	}
	if _, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", LocationID: "loc-warehouse", Quantity: 10,
	}); err != nil {
		t.Fatalf("initialize destination failed: %v", err)
	}

	_, err := svc.TransferInventory(ctx, domain.InventoryTransferRequest{
		ProductID:      "prod-a",
		FromLocationID: "loc-main",
		ToLocationID:   "loc-warehouse",
		Quantity:       5,
	})
	if !errors.Is(err, store.ErrDebitExceedsStock) {
		t.Fatalf("expected transfer of 5 from 3 to be rejected, got %v", err)
	}

	from, _ := svc.GetInventory(ctx, "prod-a", "loc-main")
	to, _ := svc.GetInventory(ctx, "prod-a", "loc-warehouse")
	if from.Quantity != 3 || to.Quantity != 10 {
		t.Fatalf("rejected transfer must leave both sides unchanged, got from=%d to=%d", from.Quantity, to.Quantity)
	}
}

func TestTransferRecordsBothMovements(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", LocationID: "loc-main", Quantity: 10,
	}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	result, err := svc.TransferInventory(ctx, domain.InventoryTransferRequest{
		ProductID:      "prod-a",
		FromLocationID: "loc-main",
		ToLocationID:   "loc-warehouse",
		Quantity:       4,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if result.From.Quantity != 6 || result.To.Quantity != 4 {
		t.Fatalf("unexpected balances after transfer: from=%d to=%d", result.From.Quantity, result.To.Quantity)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("expected two movement rows for a transfer, got %d", len(result.Movements))
	}
	debit, credit := result.Movements[0], result.Movements[1]
	if debit.QuantityBefore != 10 || debit.QuantityAfter != 6 {
		t.Fatalf("unexpected debit before/after: %d/%d", debit.QuantityBefore, debit.QuantityAfter)
	}
	if credit.QuantityBefore != 0 || credit.QuantityAfter != 4 {
		t.Fatalf("unexpected credit before/after: %d/%d", credit.QuantityBefore, credit.QuantityAfter)
	}
}

func TestMovementLedgerSumMatchesSnapshot(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", Quantity: 20,
	}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	steps := []int{-3, 5, -7, 2}
	for _, delta := range steps {
		if _, err := svc.AdjustInventory(ctx, domain.InventoryAdjustRequest{
			ProductID: "prod-a", Delta: delta, Reason: "cycle count",
		}); err != nil {
			t.Fatalf("adjust %d failed: %v", delta, err)
		}
	}

	movements, err := svc.ListMovements(ctx, "prod-a", "", 50)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	sum := 0
	for _, mv := range movements {
		if mv.ToLocationID == "loc-main" {
			sum += mv.Quantity
		}
		if mv.FromLocationID == "loc-main" {
			sum -= mv.Quantity
		}
	}

	snap, err := svc.GetInventory(ctx, "prod-a", "loc-main")
	if err != nil {
		t.Fatalf("get inventory failed: %v", err)
	}
	if sum != snap.Quantity {
		t.Fatalf("ledger sum %d does not match snapshot %d", sum, snap.Quantity)
	}
}

func TestReceivePurchaseOrderLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		VendorID: "vendor-1",
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-a", Quantity: 10, UnitPrice: decimal.NewFromFloat(4.25)},
		},
	})
	if err != nil {
		t.Fatalf("create po failed: %v", err)
	}
	if po.Status != domain.POStatusDraft {
		t.Fatalf("expected draft status, got %s", po.Status)
	}

	po, err = svc.SubmitPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if po.Status != domain.POStatusOrdered {
		t.Fatalf("expected ordered status, got %s", po.Status)
	}
	itemID := po.Items[0].ID

	first, err := svc.ReceivePurchaseOrderItem(ctx, itemID, domain.ReceiveItemRequest{Quantity: 4})
	if err != nil {
		t.Fatalf("first receive failed: %v", err)
	}
	if first.PurchaseOrder.Status != domain.POStatusPartiallyReceived {
		t.Fatalf("expected partially_received after 4 of 10, got %s", first.PurchaseOrder.Status)
	}
	if first.Snapshot.Quantity != 4 {
		t.Fatalf("expected inventory 4 after first receive, got %d", first.Snapshot.Quantity)
	}
	if first.Movement.MovementType != domain.MovementTypePOReceipt {
		t.Fatalf("expected po_receipt movement, got %s", first.Movement.MovementType)
	}

	second, err := svc.ReceivePurchaseOrderItem(ctx, itemID, domain.ReceiveItemRequest{Quantity: 6})
	if err != nil {
		t.Fatalf("second receive failed: %v", err)
	}
	if second.PurchaseOrder.Status != domain.POStatusReceived {
		t.Fatalf("expected received after full quantity, got %s", second.PurchaseOrder.Status)
	}
	if second.Item.QuantityRemaining != 0 {
		t.Fatalf("expected nothing remaining, got %d", second.Item.QuantityRemaining)
	}

	_, err = svc.ReceivePurchaseOrderItem(ctx, itemID, domain.ReceiveItemRequest{Quantity: 1})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected over-receive to conflict, got %v", err)
	}

	events, err := svc.ListReceivingEvents(ctx, po.ID)
	if err != nil {
		t.Fatalf("list receiving events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two receiving events, got %d", len(events))
	}
	if events[0].QuantityReceived != 4 || events[1].QuantityReceived != 6 {
		t.Fatalf("unexpected event quantities: %d, %d", events[0].QuantityReceived, events[1].QuantityReceived)
	}
}

func TestCancelReceivedPurchaseOrderRejected(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		VendorID: "vendor-1",
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-a", Quantity: 5, UnitPrice: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("create po failed: %v", err)
	}
	po, err = svc.SubmitPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.ReceivePurchaseOrderItem(ctx, po.Items[0].ID, domain.ReceiveItemRequest{Quantity: 2}); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	_, err = svc.CancelPurchaseOrder(ctx, po.ID)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected cancel of partially received order to conflict, got %v", err)
	}
}

func TestCreatePurchaseOrderRequiresManager(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreatePurchaseOrder(cashierCtx(), domain.PurchaseOrderCreateRequest{
		VendorID: "vendor-1",
		Items: []domain.PurchaseOrderItemRequest{
			{ProductID: "prod-a", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected cashier po creation to be rejected, got %v", err)
	}
}

func TestInitializeRejectsZeroQuantity(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	_, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", Quantity: 0,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected zero-quantity initialize to be rejected, got %v", err)
	}

	movements, err := svc.ListMovements(ctx, "prod-a", "", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("rejected initialize must append no movements, got %d", len(movements))
	}
}

func TestInitializeTwiceConflicts(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", Quantity: 5,
	}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	_, err := svc.InitializeInventory(ctx, domain.InventoryInitializeRequest{
		ProductID: "prod-a", Quantity: 5,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second initialize to conflict, got %v", err)
	}
}

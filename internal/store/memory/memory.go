package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
	"github.com/floradistro/websitev2-sub022/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. Every
// mutating method holds the write lock for its whole body, which gives the
// same all-or-nothing visibility the postgres store gets from transactions.
type Store struct {
	mu                    sync.RWMutex
	registersByID         map[string]domain.Register
	registerSeqByLocation map[string]int
	sessionsByID          map[string]domain.DrawerSession
	sessionSeqByLocation  map[string]int
	openSessionByRegister map[string]string
	inventory             map[string]domain.InventorySnapshot
	movements             []domain.Movement
	purchaseOrdersByID    map[string]domain.PurchaseOrder
	poByItemID            map[string]string
	poSeq                 int
	receivingEvents       []domain.ReceivingEvent
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.User
}

func New() *Store {
	return &Store{
		registersByID:         map[string]domain.Register{},
		registerSeqByLocation: map[string]int{},
		sessionsByID:          map[string]domain.DrawerSession{},
		sessionSeqByLocation:  map[string]int{},
		openSessionByRegister: map[string]string{},
		inventory:             map[string]domain.InventorySnapshot{},
		purchaseOrdersByID:    map[string]domain.PurchaseOrder{},
		poByItemID:            map[string]string{},
		usersByUsername:       seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small demo location so the
// server is usable immediately in dev mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for i, name := range []string{"Front Counter", "Back Counter", "Pickup Window"} {
		reg := domain.Register{
			ID:             xid.New("reg"),
			LocationID:     "loc-main",
			RegisterNumber: i + 1,
			RegisterName:   name,
			Status:         domain.RegisterStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.registersByID[reg.ID] = reg
	}
	s.registerSeqByLocation["loc-main"] = 3

	cost := decimal.NewFromFloat(4.25)
	for pid, qty := range map[string]int{
		"prod-flower-og":  120,
		"prod-vape-blue":  60,
		"prod-edible-10m": 200,
	} {
		s.inventory[invKey(pid, "loc-main")] = domain.InventorySnapshot{
			ProductID:   pid,
			LocationID:  "loc-main",
			Quantity:    qty,
			CostPerUnit: &cost,
			UpdatedAt:   now,
		}
	}
	return s
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, hardcoded dev defaults are used with a warning. These accounts are
// never used in production (the backend uses PostgreSQL when DATABASE_URL is
// set).
func seedUsers() map[string]domain.User {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.User{}
	for _, u := range []struct {
		username string
		fullName string
		password string
		role     string
	}{
		{"manager", "Store Manager", managerPwd, domain.RoleManager},
		{"cashier", "Floor Cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.User{
			ID:           xid.New("usr"),
			Username:     u.username,
			FullName:     u.fullName,
			Role:         u.role,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func invKey(productID string, locationID string) string {
	return productID + "::" + locationID
}

func (s *Store) CreateRegister(_ context.Context, register domain.Register) (*domain.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.Status == "" {
		register.Status = domain.RegisterStatusActive
	}
	s.registerSeqByLocation[register.LocationID]++
	register.RegisterNumber = s.registerSeqByLocation[register.LocationID]
	register.CreatedAt = now
	register.UpdatedAt = now
	s.registersByID[register.ID] = register
	out := register
	return &out, nil
}

func (s *Store) GetRegisterByID(_ context.Context, registerID string) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, exists := s.registersByID[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := reg
	return &out, nil
}

func (s *Store) ListRegisters(_ context.Context, locationID string) ([]domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Register, 0)
	for _, reg := range s.registersByID {
		if locationID == "" || reg.LocationID == locationID {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].RegisterNumber < out[j].RegisterNumber
	})
	return out, nil
}

func (s *Store) FindRegisterByDevice(_ context.Context, locationID string, deviceID string) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.registersByID {
		if reg.LocationID == locationID && reg.BoundDeviceID == deviceID && reg.Status == domain.RegisterStatusActive {
			out := reg
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUnassignedRegisters(_ context.Context, locationID string, limit int) ([]domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Register, 0)
	for _, reg := range s.registersByID {
		if reg.LocationID == locationID && reg.BoundDeviceID == "" && reg.Status == domain.RegisterStatusActive {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisterNumber < out[j].RegisterNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) BindRegisterDevice(_ context.Context, registerID string, deviceID string, ipAddress string, at time.Time) (*domain.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, exists := s.registersByID[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Last writer wins: a prior binding on this register is overwritten
	// without unbinding the other device anywhere.
	reg.BoundDeviceID = deviceID
	reg.LastIPAddress = ipAddress
	ts := at
	reg.LastActiveAt = &ts
	reg.UpdatedAt = at
	s.registersByID[registerID] = reg
	out := reg
	return &out, nil
}

func (s *Store) TouchRegister(_ context.Context, registerID string, ipAddress string, at time.Time) (*domain.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, exists := s.registersByID[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if ipAddress != "" {
		reg.LastIPAddress = ipAddress
	}
	ts := at
	reg.LastActiveAt = &ts
	reg.UpdatedAt = at
	s.registersByID[registerID] = reg
	out := reg
	return &out, nil
}

func (s *Store) SetRegisterStatus(_ context.Context, registerID string, status string) (*domain.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, exists := s.registersByID[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	reg.Status = status
	reg.UpdatedAt = time.Now().UTC()
	s.registersByID[registerID] = reg
	out := reg
	return &out, nil
}

func (s *Store) OpenSession(_ context.Context, session domain.DrawerSession) (*domain.DrawerSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, exists := s.registersByID[session.RegisterID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	if reg.LocationID != session.LocationID {
		return nil, false, fmt.Errorf("%w: register %s does not belong to location %s", store.ErrValidation, session.RegisterID, session.LocationID)
	}
	if reg.Status != domain.RegisterStatusActive {
		return nil, false, fmt.Errorf("%w: register %s is disabled", store.ErrConflict, session.RegisterID)
	}
	if existingID, open := s.openSessionByRegister[session.RegisterID]; open {
		existing := s.sessionsByID[existingID]
		out := existing
		return &out, false, nil
	}

	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	s.sessionSeqByLocation[session.LocationID]++
	session.SessionNumber = s.sessionSeqByLocation[session.LocationID]
	session.Status = domain.SessionStatusOpen
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.TotalSales = decimal.Zero
	session.TotalCash = decimal.Zero
	s.sessionsByID[session.ID] = session
	s.openSessionByRegister[session.RegisterID] = session.ID
	out := session
	return &out, true, nil
}

func (s *Store) GetSessionByID(_ context.Context, sessionID string) (*domain.DrawerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *Store) GetOpenSessionByRegister(_ context.Context, registerID string) (*domain.DrawerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.openSessionByRegister[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := s.sessionsByID[sessionID]
	return &out, nil
}

func (s *Store) ApplySessionAccrual(_ context.Context, sessionID string, accrual store.SessionAccrual) (*domain.DrawerSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	if sess.Status != domain.SessionStatusOpen {
		return nil, false, fmt.Errorf("%w: session %s is closed", store.ErrConflict, sessionID)
	}

	clamped := false
	sess.TotalSales = sess.TotalSales.Add(accrual.Sales)
	if sess.TotalSales.Sign() < 0 {
		sess.TotalSales = decimal.Zero
		clamped = true
	}
	sess.TotalCash = sess.TotalCash.Add(accrual.Cash)
	if sess.TotalCash.Sign() < 0 {
		sess.TotalCash = decimal.Zero
		clamped = true
	}
	sess.TotalTransactions += accrual.Transactions
	if sess.TotalTransactions < 0 {
		sess.TotalTransactions = 0
		clamped = true
	}
	sess.WalkInSales += accrual.WalkIns
	if sess.WalkInSales < 0 {
		sess.WalkInSales = 0
		clamped = true
	}
	sess.PickupOrdersFulfilled += accrual.PickupOrders
	if sess.PickupOrdersFulfilled < 0 {
		sess.PickupOrdersFulfilled = 0
		clamped = true
	}

	s.sessionsByID[sessionID] = sess
	out := sess
	return &out, clamped, nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, closingCash decimal.Decimal, closedBy string, notes string, at time.Time) (*domain.DrawerSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	if sess.Status == domain.SessionStatusClosed {
		out := sess
		return &out, true, nil
	}

	expected := sess.OpeningCash.Add(sess.TotalCash)
	diff := closingCash.Sub(expected)
	sess.Status = domain.SessionStatusClosed
	sess.ClosedBy = closedBy
	closedAt := at
	sess.ClosedAt = &closedAt
	cc := closingCash
	sess.ClosingCash = &cc
	sess.ExpectedCash = &expected
	sess.CashDifference = &diff
	sess.CloseStatus = domain.ClassifyCashDifference(diff)
	if notes != "" {
		sess.ClosingNotes = notes
	}
	s.sessionsByID[sessionID] = sess
	delete(s.openSessionByRegister, sess.RegisterID)
	out := sess
	return &out, false, nil
}

func (s *Store) ListSessions(_ context.Context, locationID string, status string, limit int) ([]domain.DrawerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DrawerSession, 0)
	for _, sess := range s.sessionsByID {
		if locationID != "" && sess.LocationID != locationID {
			continue
		}
		if status != "" && sess.Status != status {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetInventory(_ context.Context, productID string, locationID string) (*domain.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.inventory[invKey(productID, locationID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := snap
	return &out, nil
}

func (s *Store) ListInventoryByLocation(_ context.Context, locationID string, limit int) ([]domain.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventorySnapshot, 0)
	for _, snap := range s.inventory {
		if snap.LocationID == locationID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InitializeInventory(_ context.Context, req domain.InventoryInitializeRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := invKey(req.ProductID, req.LocationID)
	if _, exists := s.inventory[key]; exists {
		return nil, fmt.Errorf("%w: inventory already initialized for %s at %s", store.ErrConflict, req.ProductID, req.LocationID)
	}

	snap := domain.InventorySnapshot{
		ProductID:   req.ProductID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		CostPerUnit: req.CostPerUnit,
		UpdatedAt:   at,
	}
	s.inventory[key] = snap

	mv := domain.Movement{
		ID:             xid.New("mov"),
		ProductID:      req.ProductID,
		MovementType:   domain.MovementTypePurchase,
		Quantity:       req.Quantity,
		ToLocationID:   req.LocationID,
		QuantityBefore: 0,
		QuantityAfter:  req.Quantity,
		CostPerUnit:    req.CostPerUnit,
		Reason:         "initial stock",
		CreatedBy:      createdBy,
		CreatedAt:      at,
	}
	s.movements = append(s.movements, mv)
	return &domain.InventoryMutationResult{Snapshot: snap, Movement: mv}, nil
}

func (s *Store) AdjustInventory(_ context.Context, req domain.InventoryAdjustRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, mv, err := s.applyDelta(req.ProductID, req.LocationID, req.Delta, req.MovementType, req.Reason, req.Notes, req.ReferenceID, req.CostPerUnit, createdBy, at)
	if err != nil {
		return nil, err
	}
	return &domain.InventoryMutationResult{Snapshot: snap, Movement: mv}, nil
}

// applyDelta mutates one snapshot and appends its movement. Callers hold the
// write lock; a returned error means nothing was written.
func (s *Store) applyDelta(productID string, locationID string, delta int, movementType string, reason string, notes string, referenceID string, costPerUnit *decimal.Decimal, createdBy string, at time.Time) (domain.InventorySnapshot, domain.Movement, error) {
	key := invKey(productID, locationID)
	snap, exists := s.inventory[key]
	if !exists {
		if delta < 0 {
			return domain.InventorySnapshot{}, domain.Movement{}, store.ErrNotFound
		}
		snap = domain.InventorySnapshot{ProductID: productID, LocationID: locationID}
	}

	before := snap.Quantity
	after := before + delta
	if after < 0 {
		return domain.InventorySnapshot{}, domain.Movement{}, fmt.Errorf("%w: have %d, debit %d", store.ErrDebitExceedsStock, before, -delta)
	}

	snap.Quantity = after
	if costPerUnit != nil {
		snap.CostPerUnit = costPerUnit
	}
	snap.UpdatedAt = at
	s.inventory[key] = snap

	mv := domain.Movement{
		ID:             xid.New("mov"),
		ProductID:      productID,
		MovementType:   movementType,
		QuantityBefore: before,
		QuantityAfter:  after,
		CostPerUnit:    costPerUnit,
		ReferenceID:    referenceID,
		Reason:         reason,
		Notes:          notes,
		CreatedBy:      createdBy,
		CreatedAt:      at,
	}
	if delta < 0 {
		mv.Quantity = -delta
		mv.FromLocationID = locationID
	} else {
		mv.Quantity = delta
		mv.ToLocationID = locationID
	}
	s.movements = append(s.movements, mv)
	return snap, mv, nil
}

func (s *Store) TransferInventory(_ context.Context, req domain.InventoryTransferRequest, createdBy string, at time.Time) (*domain.InventoryTransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := invKey(req.ProductID, req.FromLocationID)
	fromSnap, exists := s.inventory[fromKey]
	if !exists {
		return nil, store.ErrNotFound
	}
	if fromSnap.Quantity < req.Quantity {
		return nil, fmt.Errorf("%w: have %d, debit %d", store.ErrDebitExceedsStock, fromSnap.Quantity, req.Quantity)
	}

	toKey := invKey(req.ProductID, req.ToLocationID)
	toSnap, exists := s.inventory[toKey]
	if !exists {
		toSnap = domain.InventorySnapshot{
			ProductID:   req.ProductID,
			LocationID:  req.ToLocationID,
			CostPerUnit: fromSnap.CostPerUnit,
		}
	}

	fromBefore := fromSnap.Quantity
	toBefore := toSnap.Quantity
	fromSnap.Quantity -= req.Quantity
	toSnap.Quantity += req.Quantity
	fromSnap.UpdatedAt = at
	toSnap.UpdatedAt = at
	s.inventory[fromKey] = fromSnap
	s.inventory[toKey] = toSnap

	debit := domain.Movement{
		ID:             xid.New("mov"),
		ProductID:      req.ProductID,
		MovementType:   domain.MovementTypeTransfer,
		Quantity:       req.Quantity,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		QuantityBefore: fromBefore,
		QuantityAfter:  fromBefore - req.Quantity,
		Reason:         req.Reason,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
		CreatedAt:      at,
	}
	credit := debit
	credit.ID = xid.New("mov")
	credit.QuantityBefore = toBefore
	credit.QuantityAfter = toBefore + req.Quantity
	s.movements = append(s.movements, debit, credit)

	return &domain.InventoryTransferResult{
		From:      fromSnap,
		To:        toSnap,
		Movements: []domain.Movement{debit, credit},
	}, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, locationID string, limit int) ([]domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Movement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		mv := s.movements[i]
		if productID != "" && mv.ProductID != productID {
			continue
		}
		if locationID != "" && mv.FromLocationID != locationID && mv.ToLocationID != locationID {
			continue
		}
		out = append(out, mv)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	s.poSeq++
	po.PONumber = fmt.Sprintf("PO-%05d", s.poSeq)
	if po.Status == "" {
		po.Status = domain.POStatusDraft
	}
	po.CreatedAt = now
	po.UpdatedAt = now
	for i := range po.Items {
		if po.Items[i].ID == "" {
			po.Items[i].ID = xid.New("poi")
		}
		po.Items[i].PurchaseOrderID = po.ID
		po.Items[i].QuantityReceived = 0
		po.Items[i].QuantityRemaining = po.Items[i].Quantity
		s.poByItemID[po.Items[i].ID] = po.ID
	}
	s.purchaseOrdersByID[po.ID] = po
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, locationID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PurchaseOrder, 0)
	for _, po := range s.purchaseOrdersByID {
		if locationID != "" && po.LocationID != locationID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		out = append(out, clonePurchaseOrder(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PONumber > out[j].PONumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionPurchaseOrder(_ context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if po.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: purchase order %s is %s", store.ErrConflict, purchaseOrderID, po.Status)
	}
	if to == domain.POStatusCancelled {
		for _, it := range po.Items {
			if it.QuantityReceived > 0 {
				return nil, fmt.Errorf("%w: purchase order %s has received stock", store.ErrConflict, purchaseOrderID)
			}
		}
	}
	po.Status = to
	po.UpdatedAt = at
	s.purchaseOrdersByID[purchaseOrderID] = po
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) ReceivePurchaseOrderItem(_ context.Context, purchaseOrderItemID string, req domain.ReceiveItemRequest, receivedBy string, at time.Time) (*domain.ReceiveItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poID, exists := s.poByItemID[purchaseOrderItemID]
	if !exists {
		return nil, store.ErrNotFound
	}
	po := s.purchaseOrdersByID[poID]
	if po.Status != domain.POStatusOrdered && po.Status != domain.POStatusPartiallyReceived {
		return nil, fmt.Errorf("%w: purchase order %s is %s", store.ErrConflict, poID, po.Status)
	}

	idx := -1
	for i := range po.Items {
		if po.Items[i].ID == purchaseOrderItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	item := po.Items[idx]
	if req.Quantity > item.QuantityRemaining {
		return nil, fmt.Errorf("%w: %d remaining, tried to receive %d", store.ErrConflict, item.QuantityRemaining, req.Quantity)
	}

	unitPrice := item.UnitPrice
	snap, mv, err := s.applyDelta(item.ProductID, po.LocationID, req.Quantity, domain.MovementTypePOReceipt, "po receipt", req.Notes, po.ID, &unitPrice, receivedBy, at)
	if err != nil {
		return nil, err
	}

	item.QuantityReceived += req.Quantity
	item.QuantityRemaining = item.Quantity - item.QuantityReceived
	po.Items[idx] = item
	po.Status = domain.RollupPurchaseOrderStatus(po.Items)
	po.UpdatedAt = at
	s.purchaseOrdersByID[poID] = po

	event := domain.ReceivingEvent{
		ID:                  xid.New("rcv"),
		PurchaseOrderID:     po.ID,
		PurchaseOrderItemID: item.ID,
		ProductID:           item.ProductID,
		LocationID:          po.LocationID,
		QuantityReceived:    req.Quantity,
		Condition:           req.Condition,
		Notes:               req.Notes,
		ReceivedBy:          receivedBy,
		ReceivedAt:          at,
	}
	s.receivingEvents = append(s.receivingEvents, event)

	return &domain.ReceiveItemResult{
		PurchaseOrder: clonePurchaseOrder(po),
		Item:          item,
		Event:         event,
		Snapshot:      snap,
		Movement:      mv,
	}, nil
}

func (s *Store) ListReceivingEvents(_ context.Context, purchaseOrderID string) ([]domain.ReceivingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ReceivingEvent, 0)
	for _, ev := range s.receivingEvents {
		if ev.PurchaseOrderID == purchaseOrderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrConflict, username)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[key]
	if !exists {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.usersByUsername[key] = user
	return nil
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
	"github.com/floradistro/websitev2-sub022/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool so migrations can run against it at startup.
func (s *Store) DB() *sql.DB {
	return s.db
}

const registerColumns = `id, location_id, register_number, register_name, status,
	bound_device_id, last_ip_address, last_active_at, created_at, updated_at`

func scanRegister(row interface{ Scan(...any) error }) (*domain.Register, error) {
	var reg domain.Register
	var deviceID, ipAddress sql.NullString
	var lastActive sql.NullTime
	err := row.Scan(
		&reg.ID,
		&reg.LocationID,
		&reg.RegisterNumber,
		&reg.RegisterName,
		&reg.Status,
		&deviceID,
		&ipAddress,
		&lastActive,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.BoundDeviceID = deviceID.String
	reg.LastIPAddress = ipAddress.String
	if lastActive.Valid {
		at := lastActive.Time.UTC()
		reg.LastActiveAt = &at
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return &reg, nil
}

func (s *Store) CreateRegister(ctx context.Context, register domain.Register) (*domain.Register, error) {
	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.Status == "" {
		register.Status = domain.RegisterStatusActive
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(register_number), 0) + 1
		FROM registers
		WHERE location_id = $1
	`, register.LocationID).Scan(&next); err != nil {
		return nil, mapTxError(err)
	}
	register.RegisterNumber = next

	row := tx.QueryRowContext(ctx, `
		INSERT INTO registers (
			id, location_id, register_number, register_name, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+registerColumns+`
	`, register.ID, register.LocationID, register.RegisterNumber, register.RegisterName, register.Status)
	saved, err := scanRegister(row)
	if err != nil {
		if isUniqueViolation(err) {
			// Two creates raced the same register_number. Safe to retry.
			return nil, fmt.Errorf("%w: register number contention", store.ErrTransient)
		}
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return saved, nil
}

func (s *Store) GetRegisterByID(ctx context.Context, registerID string) (*domain.Register, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE id = $1
	`, registerID)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (s *Store) ListRegisters(ctx context.Context, locationID string) ([]domain.Register, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE ($1 = '' OR location_id = $1)
		ORDER BY location_id, register_number
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registers := make([]domain.Register, 0, 16)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		registers = append(registers, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return registers, nil
}

func (s *Store) FindRegisterByDevice(ctx context.Context, locationID string, deviceID string) (*domain.Register, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE location_id = $1 AND bound_device_id = $2 AND status = 'active'
		ORDER BY register_number
		LIMIT 1
	`, locationID, deviceID)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (s *Store) ListUnassignedRegisters(ctx context.Context, locationID string, limit int) ([]domain.Register, error) {
	if limit < 1 {
		limit = domain.NeedsAssignmentCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE location_id = $1 AND bound_device_id IS NULL AND status = 'active'
		ORDER BY register_number
		LIMIT $2
	`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registers := make([]domain.Register, 0, limit)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		registers = append(registers, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return registers, nil
}

func (s *Store) BindRegisterDevice(ctx context.Context, registerID string, deviceID string, ipAddress string, at time.Time) (*domain.Register, error) {
	// Single UPDATE, last writer wins. No coordination with any other
	// register that may have held this device before.
	row := s.db.QueryRowContext(ctx, `
		UPDATE registers
		SET bound_device_id = $2, last_ip_address = $3, last_active_at = $4, updated_at = $4
		WHERE id = $1
		RETURNING `+registerColumns+`
	`, registerID, deviceID, nullIfEmpty(ipAddress), at)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (s *Store) TouchRegister(ctx context.Context, registerID string, ipAddress string, at time.Time) (*domain.Register, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE registers
		SET last_ip_address = COALESCE($2, last_ip_address), last_active_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING `+registerColumns+`
	`, registerID, nullIfEmpty(ipAddress), at)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (s *Store) SetRegisterStatus(ctx context.Context, registerID string, status string) (*domain.Register, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE registers
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+registerColumns+`
	`, registerID, status)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

const sessionColumns = `id, session_number, register_id, location_id, vendor_id, status,
	opened_by, opened_at, opening_cash, total_sales, total_cash, total_transactions,
	walk_in_sales, pickup_orders_fulfilled, closed_by, closed_at, closing_cash,
	expected_cash, cash_difference, close_status, closing_notes`

func scanSession(row interface{ Scan(...any) error }) (*domain.DrawerSession, error) {
	var sess domain.DrawerSession
	var vendorID, closedBy, closeStatus, closingNotes sql.NullString
	var closedAt sql.NullTime
	var closingCash, expectedCash, cashDifference decimal.NullDecimal
	err := row.Scan(
		&sess.ID,
		&sess.SessionNumber,
		&sess.RegisterID,
		&sess.LocationID,
		&vendorID,
		&sess.Status,
		&sess.OpenedBy,
		&sess.OpenedAt,
		&sess.OpeningCash,
		&sess.TotalSales,
		&sess.TotalCash,
		&sess.TotalTransactions,
		&sess.WalkInSales,
		&sess.PickupOrdersFulfilled,
		&closedBy,
		&closedAt,
		&closingCash,
		&expectedCash,
		&cashDifference,
		&closeStatus,
		&closingNotes,
	)
	if err != nil {
		return nil, err
	}
	sess.VendorID = vendorID.String
	sess.ClosedBy = closedBy.String
	sess.CloseStatus = closeStatus.String
	sess.ClosingNotes = closingNotes.String
	sess.OpenedAt = sess.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		sess.ClosedAt = &at
	}
	if closingCash.Valid {
		sess.ClosingCash = &closingCash.Decimal
	}
	if expectedCash.Valid {
		sess.ExpectedCash = &expectedCash.Decimal
	}
	if cashDifference.Valid {
		sess.CashDifference = &cashDifference.Decimal
	}
	return &sess, nil
}

// OpenSession inserts a new open session or, when the register already has
// one, returns it unchanged. The partial unique index on (register_id) WHERE
// status = 'open' makes the insert the linearization point: a losing racer
// hits a unique violation and falls through to the read.
func (s *Store) OpenSession(ctx context.Context, session domain.DrawerSession) (*domain.DrawerSession, bool, error) {
	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}

	if existing, err := s.GetOpenSessionByRegister(ctx, session.RegisterID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var regLocation, regStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT location_id, status FROM registers WHERE id = $1
	`, session.RegisterID).Scan(&regLocation, &regStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, mapTxError(err)
	}
	if regLocation != session.LocationID {
		return nil, false, fmt.Errorf("%w: register %s does not belong to location %s", store.ErrValidation, session.RegisterID, session.LocationID)
	}
	if regStatus != domain.RegisterStatusActive {
		return nil, false, fmt.Errorf("%w: register %s is disabled", store.ErrConflict, session.RegisterID)
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(session_number), 0) + 1
		FROM sessions
		WHERE location_id = $1
	`, session.LocationID).Scan(&next); err != nil {
		return nil, false, mapTxError(err)
	}
	session.SessionNumber = next

	row := tx.QueryRowContext(ctx, `
		INSERT INTO sessions (
			id, session_number, register_id, location_id, vendor_id, status,
			opened_by, opened_at, opening_cash, total_sales, total_cash,
			total_transactions, walk_in_sales, pickup_orders_fulfilled
		)
		VALUES ($1,$2,$3,$4,$5,'open',$6,$7,$8,0,0,0,0,0)
		RETURNING `+sessionColumns+`
	`, session.ID, session.SessionNumber, session.RegisterID, session.LocationID,
		nullIfEmpty(session.VendorID), session.OpenedBy, session.OpenedAt, session.OpeningCash)
	saved, err := scanSession(row)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, mapTxError(err)
		}
		return saved, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, mapTxError(err)
	}
	_ = tx.Rollback()

	existing, getErr := s.GetOpenSessionByRegister(ctx, session.RegisterID)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

func (s *Store) GetSessionByID(ctx context.Context, sessionID string) (*domain.DrawerSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *Store) GetOpenSessionByRegister(ctx context.Context, registerID string) (*domain.DrawerSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE register_id = $1 AND status = 'open'
	`, registerID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *Store) ApplySessionAccrual(ctx context.Context, sessionID string, accrual store.SessionAccrual) (*domain.DrawerSession, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, mapTxError(err)
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

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET total_sales = $2, total_cash = $3, total_transactions = $4,
			walk_in_sales = $5, pickup_orders_fulfilled = $6
		WHERE id = $1
	`, sessionID, sess.TotalSales, sess.TotalCash, sess.TotalTransactions,
		sess.WalkInSales, sess.PickupOrdersFulfilled)
	if err != nil {
		return nil, false, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, mapTxError(err)
	}
	return sess, clamped, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID string, closingCash decimal.Decimal, closedBy string, notes string, at time.Time) (*domain.DrawerSession, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, mapTxError(err)
	}
	if sess.Status == domain.SessionStatusClosed {
		// A second close is a no-op: the stored summary wins.
		return sess, true, nil
	}

	expected := sess.OpeningCash.Add(sess.TotalCash)
	diff := closingCash.Sub(expected)
	closeStatus := domain.ClassifyCashDifference(diff)

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'closed', closed_by = $2, closed_at = $3, closing_cash = $4,
			expected_cash = $5, cash_difference = $6, close_status = $7,
			closing_notes = COALESCE($8, closing_notes)
		WHERE id = $1
	`, sessionID, nullIfEmpty(closedBy), at, closingCash, expected, diff, closeStatus, nullIfEmpty(notes))
	if err != nil {
		return nil, false, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, mapTxError(err)
	}

	sess.Status = domain.SessionStatusClosed
	sess.ClosedBy = closedBy
	closedAt := at.UTC()
	sess.ClosedAt = &closedAt
	cc := closingCash
	sess.ClosingCash = &cc
	sess.ExpectedCash = &expected
	sess.CashDifference = &diff
	sess.CloseStatus = closeStatus
	if notes != "" {
		sess.ClosingNotes = notes
	}
	return sess, false, nil
}

func (s *Store) ListSessions(ctx context.Context, locationID string, status string, limit int) ([]domain.DrawerSession, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE ($1 = '' OR location_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY opened_at DESC
		LIMIT $3
	`, locationID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.DrawerSession, 0, limit)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*domain.InventorySnapshot, error) {
	var snap domain.InventorySnapshot
	var cost decimal.NullDecimal
	if err := row.Scan(&snap.ProductID, &snap.LocationID, &snap.Quantity, &cost, &snap.UpdatedAt); err != nil {
		return nil, err
	}
	if cost.Valid {
		snap.CostPerUnit = &cost.Decimal
	}
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	return &snap, nil
}

func (s *Store) GetInventory(ctx context.Context, productID string, locationID string) (*domain.InventorySnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, location_id, quantity, cost_per_unit, updated_at
		FROM inventory
		WHERE product_id = $1 AND location_id = $2
	`, productID, locationID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return snap, nil
}

func (s *Store) ListInventoryByLocation(ctx context.Context, locationID string, limit int) ([]domain.InventorySnapshot, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, location_id, quantity, cost_per_unit, updated_at
		FROM inventory
		WHERE location_id = $1
		ORDER BY product_id
		LIMIT $2
	`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make([]domain.InventorySnapshot, 0, limit)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

func (s *Store) InitializeInventory(ctx context.Context, req domain.InventoryInitializeRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, location_id, quantity, cost_per_unit, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, req.ProductID, req.LocationID, req.Quantity, nullDecimal(req.CostPerUnit), at)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: inventory already initialized for %s at %s", store.ErrConflict, req.ProductID, req.LocationID)
		}
		return nil, mapTxError(err)
	}

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
	if err := insertMovement(ctx, tx, mv); err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	snap := domain.InventorySnapshot{
		ProductID:   req.ProductID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		CostPerUnit: req.CostPerUnit,
		UpdatedAt:   at,
	}
	return &domain.InventoryMutationResult{Snapshot: snap, Movement: mv}, nil
}

func (s *Store) AdjustInventory(ctx context.Context, req domain.InventoryAdjustRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	snap, mv, err := applyDelta(ctx, tx, req.ProductID, req.LocationID, req.Delta, req.MovementType, req.Reason, req.Notes, req.ReferenceID, req.CostPerUnit, createdBy, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &domain.InventoryMutationResult{Snapshot: *snap, Movement: *mv}, nil
}

// applyDelta locks one snapshot row, applies a signed quantity change and
// appends the movement, all on the caller's transaction. Negative results
// are rejected, never floored: a silent floor would let the snapshot drift
// from the ledger's running sum.
func applyDelta(ctx context.Context, tx *sql.Tx, productID string, locationID string, delta int, movementType string, reason string, notes string, referenceID string, costPerUnit *decimal.Decimal, createdBy string, at time.Time) (*domain.InventorySnapshot, *domain.Movement, error) {
	var before int
	var cost decimal.NullDecimal
	err := tx.QueryRowContext(ctx, `
		SELECT quantity, cost_per_unit
		FROM inventory
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE
	`, productID, locationID).Scan(&before, &cost)
	exists := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, mapTxError(err)
		}
		if delta < 0 {
			return nil, nil, store.ErrNotFound
		}
		exists = false
		before = 0
	}

	after := before + delta
	if after < 0 {
		return nil, nil, fmt.Errorf("%w: have %d, debit %d", store.ErrDebitExceedsStock, before, -delta)
	}

	newCost := cost
	if costPerUnit != nil {
		newCost = decimal.NullDecimal{Decimal: *costPerUnit, Valid: true}
	}
	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = $3, cost_per_unit = $4, updated_at = $5
			WHERE product_id = $1 AND location_id = $2
		`, productID, locationID, after, newCost, at)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, location_id, quantity, cost_per_unit, updated_at)
			VALUES ($1,$2,$3,$4,$5)
		`, productID, locationID, after, newCost, at)
	}
	if err != nil {
		return nil, nil, mapTxError(err)
	}

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
	if err := insertMovement(ctx, tx, mv); err != nil {
		return nil, nil, mapTxError(err)
	}

	snap := domain.InventorySnapshot{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   after,
		UpdatedAt:  at,
	}
	if newCost.Valid {
		snap.CostPerUnit = &newCost.Decimal
	}
	return &snap, &mv, nil
}

func (s *Store) TransferInventory(ctx context.Context, req domain.InventoryTransferRequest, createdBy string, at time.Time) (*domain.InventoryTransferResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock both rows in location-id order so two opposing transfers cannot
	// deadlock each other.
	first, second := req.FromLocationID, req.ToLocationID
	if second < first {
		first, second = second, first
	}
	for _, loc := range []string{first, second} {
		var discard int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory
			WHERE product_id = $1 AND location_id = $2
			FOR UPDATE
		`, req.ProductID, loc).Scan(&discard)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, mapTxError(err)
		}
		if errors.Is(err, sql.ErrNoRows) && loc == req.FromLocationID {
			return nil, store.ErrNotFound
		}
	}

	var fromBefore int
	var fromCost decimal.NullDecimal
	err = tx.QueryRowContext(ctx, `
		SELECT quantity, cost_per_unit FROM inventory
		WHERE product_id = $1 AND location_id = $2
	`, req.ProductID, req.FromLocationID).Scan(&fromBefore, &fromCost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}
	if fromBefore < req.Quantity {
		return nil, fmt.Errorf("%w: have %d, debit %d", store.ErrDebitExceedsStock, fromBefore, req.Quantity)
	}

	var toBefore int
	toExists := true
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory
		WHERE product_id = $1 AND location_id = $2
	`, req.ProductID, req.ToLocationID).Scan(&toBefore)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, mapTxError(err)
		}
		toExists = false
		toBefore = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory SET quantity = $3, updated_at = $4
		WHERE product_id = $1 AND location_id = $2
	`, req.ProductID, req.FromLocationID, fromBefore-req.Quantity, at)
	if err != nil {
		return nil, mapTxError(err)
	}
	if toExists {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = $3, updated_at = $4
			WHERE product_id = $1 AND location_id = $2
		`, req.ProductID, req.ToLocationID, toBefore+req.Quantity, at)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, location_id, quantity, cost_per_unit, updated_at)
			VALUES ($1,$2,$3,$4,$5)
		`, req.ProductID, req.ToLocationID, toBefore+req.Quantity, fromCost, at)
	}
	if err != nil {
		return nil, mapTxError(err)
	}

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
	if err := insertMovement(ctx, tx, debit); err != nil {
		return nil, mapTxError(err)
	}
	if err := insertMovement(ctx, tx, credit); err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	result := &domain.InventoryTransferResult{
		From: domain.InventorySnapshot{
			ProductID:  req.ProductID,
			LocationID: req.FromLocationID,
			Quantity:   fromBefore - req.Quantity,
			UpdatedAt:  at,
		},
		To: domain.InventorySnapshot{
			ProductID:  req.ProductID,
			LocationID: req.ToLocationID,
			Quantity:   toBefore + req.Quantity,
			UpdatedAt:  at,
		},
		Movements: []domain.Movement{debit, credit},
	}
	if fromCost.Valid {
		result.From.CostPerUnit = &fromCost.Decimal
	}
	return result, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, mv domain.Movement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (
			id, product_id, movement_type, quantity, from_location_id, to_location_id,
			quantity_before, quantity_after, cost_per_unit, reference_id, reason,
			notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, mv.ID, mv.ProductID, mv.MovementType, mv.Quantity,
		nullIfEmpty(mv.FromLocationID), nullIfEmpty(mv.ToLocationID),
		mv.QuantityBefore, mv.QuantityAfter, nullDecimal(mv.CostPerUnit),
		nullIfEmpty(mv.ReferenceID), nullIfEmpty(mv.Reason), nullIfEmpty(mv.Notes),
		nullIfEmpty(mv.CreatedBy), mv.CreatedAt)
	return err
}

func (s *Store) ListMovements(ctx context.Context, productID string, locationID string, limit int) ([]domain.Movement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, movement_type, quantity, from_location_id, to_location_id,
			quantity_before, quantity_after, cost_per_unit, reference_id, reason,
			notes, created_by, created_at
		FROM inventory_movements
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2 = '' OR from_location_id = $2 OR to_location_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, productID, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.Movement, 0, limit)
	for rows.Next() {
		var mv domain.Movement
		var fromLoc, toLoc, referenceID, reason, notes, createdBy sql.NullString
		var cost decimal.NullDecimal
		if err := rows.Scan(
			&mv.ID, &mv.ProductID, &mv.MovementType, &mv.Quantity, &fromLoc, &toLoc,
			&mv.QuantityBefore, &mv.QuantityAfter, &cost, &referenceID, &reason,
			&notes, &createdBy, &mv.CreatedAt,
		); err != nil {
			return nil, err
		}
		mv.FromLocationID = fromLoc.String
		mv.ToLocationID = toLoc.String
		mv.ReferenceID = referenceID.String
		mv.Reason = reason.String
		mv.Notes = notes.String
		mv.CreatedBy = createdBy.String
		if cost.Valid {
			mv.CostPerUnit = &cost.Decimal
		}
		mv.CreatedAt = mv.CreatedAt.UTC()
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.Status == "" {
		po.Status = domain.POStatusDraft
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('purchase_order_seq')`).Scan(&seq); err != nil {
		return nil, mapTxError(err)
	}
	po.PONumber = fmt.Sprintf("PO-%05d", seq)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchase_orders (
			id, po_number, vendor_id, location_id, status, notes, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING created_at, updated_at
	`, po.ID, po.PONumber, po.VendorID, po.LocationID, po.Status,
		nullIfEmpty(po.Notes), nullIfEmpty(po.CreatedBy)).Scan(&po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for i := range po.Items {
		if po.Items[i].ID == "" {
			po.Items[i].ID = xid.New("poi")
		}
		po.Items[i].PurchaseOrderID = po.ID
		po.Items[i].QuantityReceived = 0
		po.Items[i].QuantityRemaining = po.Items[i].Quantity
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (
				id, purchase_order_id, product_id, quantity, quantity_received, unit_price
			)
			VALUES ($1,$2,$3,$4,0,$5)
		`, po.Items[i].ID, po.ID, po.Items[i].ProductID, po.Items[i].Quantity, po.Items[i].UnitPrice)
		if err != nil {
			return nil, mapTxError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	po.CreatedAt = po.CreatedAt.UTC()
	po.UpdatedAt = po.UpdatedAt.UTC()
	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, s.db, purchaseOrderID, false)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getPurchaseOrder(ctx context.Context, q querier, purchaseOrderID string, forUpdate bool) (*domain.PurchaseOrder, error) {
	query := `
		SELECT id, po_number, vendor_id, location_id, status, notes, created_by, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var po domain.PurchaseOrder
	var notes, createdBy sql.NullString
	err := q.QueryRowContext(ctx, query, purchaseOrderID).Scan(
		&po.ID, &po.PONumber, &po.VendorID, &po.LocationID, &po.Status,
		&notes, &createdBy, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.Notes = notes.String
	po.CreatedBy = createdBy.String
	po.CreatedAt = po.CreatedAt.UTC()
	po.UpdatedAt = po.UpdatedAt.UTC()

	items, err := listPurchaseOrderItems(ctx, q, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func listPurchaseOrderItems(ctx context.Context, q querier, purchaseOrderID string) ([]domain.PurchaseOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, purchase_order_id, product_id, quantity, quantity_received, unit_price
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var it domain.PurchaseOrderItem
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.Quantity, &it.QuantityReceived, &it.UnitPrice); err != nil {
			return nil, err
		}
		it.QuantityRemaining = it.Quantity - it.QuantityReceived
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, locationID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM purchase_orders
		WHERE ($1 = '' OR location_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY po_number DESC
		LIMIT $3
	`, locationID, status, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	orders := make([]domain.PurchaseOrder, 0, len(ids))
	for _, id := range ids {
		po, err := getPurchaseOrder(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *po)
	}
	return orders, nil
}

func (s *Store) TransitionPurchaseOrder(ctx context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	po, err := getPurchaseOrder(ctx, tx, purchaseOrderID, true)
	if err != nil {
		return nil, err
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

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, updated_at = $3 WHERE id = $1
	`, purchaseOrderID, to, at)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	po.Status = to
	po.UpdatedAt = at.UTC()
	return po, nil
}

func (s *Store) ReceivePurchaseOrderItem(ctx context.Context, purchaseOrderItemID string, req domain.ReceiveItemRequest, receivedBy string, at time.Time) (*domain.ReceiveItemResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var item domain.PurchaseOrderItem
	err = tx.QueryRowContext(ctx, `
		SELECT id, purchase_order_id, product_id, quantity, quantity_received, unit_price
		FROM purchase_order_items
		WHERE id = $1
		FOR UPDATE
	`, purchaseOrderItemID).Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.QuantityReceived, &item.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	po, err := getPurchaseOrder(ctx, tx, item.PurchaseOrderID, true)
	if err != nil {
		return nil, err
	}
	if po.Status != domain.POStatusOrdered && po.Status != domain.POStatusPartiallyReceived {
		return nil, fmt.Errorf("%w: purchase order %s is %s", store.ErrConflict, po.ID, po.Status)
	}
	remaining := item.Quantity - item.QuantityReceived
	if req.Quantity > remaining {
		return nil, fmt.Errorf("%w: %d remaining, tried to receive %d", store.ErrConflict, remaining, req.Quantity)
	}

	unitPrice := item.UnitPrice
	snap, mv, err := applyDelta(ctx, tx, item.ProductID, po.LocationID, req.Quantity,
		domain.MovementTypePOReceipt, "po receipt", req.Notes, po.ID, &unitPrice, receivedBy, at)
	if err != nil {
		return nil, err
	}

	item.QuantityReceived += req.Quantity
	item.QuantityRemaining = item.Quantity - item.QuantityReceived
	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_order_items SET quantity_received = $2 WHERE id = $1
	`, item.ID, item.QuantityReceived)
	if err != nil {
		return nil, mapTxError(err)
	}

	// Recompute the rollup from full item state; the status is never
	// incremented independently.
	for i := range po.Items {
		if po.Items[i].ID == item.ID {
			po.Items[i] = item
		}
	}
	po.Status = domain.RollupPurchaseOrderStatus(po.Items)
	po.UpdatedAt = at.UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, updated_at = $3 WHERE id = $1
	`, po.ID, po.Status, at)
	if err != nil {
		return nil, mapTxError(err)
	}

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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO receiving_events (
			id, purchase_order_id, purchase_order_item_id, product_id, location_id,
			quantity_received, condition, notes, received_by, received_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, event.ID, event.PurchaseOrderID, event.PurchaseOrderItemID, event.ProductID,
		event.LocationID, event.QuantityReceived, event.Condition,
		nullIfEmpty(event.Notes), event.ReceivedBy, event.ReceivedAt)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return &domain.ReceiveItemResult{
		PurchaseOrder: *po,
		Item:          item,
		Event:         event,
		Snapshot:      *snap,
		Movement:      *mv,
	}, nil
}

func (s *Store) ListReceivingEvents(ctx context.Context, purchaseOrderID string) ([]domain.ReceivingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_order_id, purchase_order_item_id, product_id, location_id,
			quantity_received, condition, notes, received_by, received_at
		FROM receiving_events
		WHERE purchase_order_id = $1
		ORDER BY received_at, id
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.ReceivingEvent, 0, 8)
	for rows.Next() {
		var ev domain.ReceivingEvent
		var notes sql.NullString
		if err := rows.Scan(
			&ev.ID, &ev.PurchaseOrderID, &ev.PurchaseOrderItemID, &ev.ProductID,
			&ev.LocationID, &ev.QuantityReceived, &ev.Condition, &notes,
			&ev.ReceivedBy, &ev.ReceivedAt,
		); err != nil {
			return nil, err
		}
		ev.Notes = notes.String
		ev.ReceivedAt = ev.ReceivedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Detail = detail.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_accounts (id, username, full_name, role, password_hash, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
	`, user.ID, user.Username, user.FullName, user.Role, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s taken", store.ErrConflict, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, password_hash, created_at
		FROM user_accounts
		WHERE username = lower($1)
	`, username).Scan(&user.ID, &user.Username, &user.FullName, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, full_name, role, password_hash, created_at
		FROM user_accounts
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 8)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.FullName, &user.Role, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_accounts SET password_hash = $2 WHERE username = lower($1)
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapTxError folds retryable postgres failures into ErrTransient so callers
// can distinguish "try again" from hard errors.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Code)
		}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDecimal(val *decimal.Decimal) decimal.NullDecimal {
	if val == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *val, Valid: true}
}

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

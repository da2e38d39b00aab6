package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/floradistro/websitev2-sub022/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDebitExceedsStock = errors.New("debit exceeds stock")
	ErrValidation        = errors.New("validation failed")
	ErrTransient         = errors.New("store temporarily unavailable")
)

type Repository interface {
	CreateRegister(ctx context.Context, register domain.Register) (*domain.Register, error)
	GetRegisterByID(ctx context.Context, registerID string) (*domain.Register, error)
	ListRegisters(ctx context.Context, locationID string) ([]domain.Register, error)
	FindRegisterByDevice(ctx context.Context, locationID string, deviceID string) (*domain.Register, error)
	ListUnassignedRegisters(ctx context.Context, locationID string, limit int) ([]domain.Register, error)
	BindRegisterDevice(ctx context.Context, registerID string, deviceID string, ipAddress string, at time.Time) (*domain.Register, error)
	TouchRegister(ctx context.Context, registerID string, ipAddress string, at time.Time) (*domain.Register, error)
	SetRegisterStatus(ctx context.Context, registerID string, status string) (*domain.Register, error)

	OpenSession(ctx context.Context, session domain.DrawerSession) (*domain.DrawerSession, bool, error)
	GetSessionByID(ctx context.Context, sessionID string) (*domain.DrawerSession, error)
	GetOpenSessionByRegister(ctx context.Context, registerID string) (*domain.DrawerSession, error)
	ApplySessionAccrual(ctx context.Context, sessionID string, accrual SessionAccrual) (*domain.DrawerSession, bool, error)
	CloseSession(ctx context.Context, sessionID string, closingCash decimal.Decimal, closedBy string, notes string, at time.Time) (*domain.DrawerSession, bool, error)
	ListSessions(ctx context.Context, locationID string, status string, limit int) ([]domain.DrawerSession, error)

	GetInventory(ctx context.Context, productID string, locationID string) (*domain.InventorySnapshot, error)
	ListInventoryByLocation(ctx context.Context, locationID string, limit int) ([]domain.InventorySnapshot, error)
	InitializeInventory(ctx context.Context, req domain.InventoryInitializeRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error)
	AdjustInventory(ctx context.Context, req domain.InventoryAdjustRequest, createdBy string, at time.Time) (*domain.InventoryMutationResult, error)
	TransferInventory(ctx context.Context, req domain.InventoryTransferRequest, createdBy string, at time.Time) (*domain.InventoryTransferResult, error)
	ListMovements(ctx context.Context, productID string, locationID string, limit int) ([]domain.Movement, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, locationID string, status string, limit int) ([]domain.PurchaseOrder, error)
	TransitionPurchaseOrder(ctx context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrderItem(ctx context.Context, purchaseOrderItemID string, req domain.ReceiveItemRequest, receivedBy string, at time.Time) (*domain.ReceiveItemResult, error)
	ListReceivingEvents(ctx context.Context, purchaseOrderID string) ([]domain.ReceivingEvent, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}

// SessionAccrual is a signed delta applied to an open session's running
// totals. Negative deltas are clamped at zero by the store.
type SessionAccrual struct {
	Sales        decimal.Decimal
	Cash         decimal.Decimal
	Transactions int
	WalkIns      int
	PickupOrders int
}

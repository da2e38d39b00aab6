package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Register struct {
	ID             string     `json:"id"`
	LocationID     string     `json:"location_id"`
	RegisterNumber int        `json:"register_number"`
	RegisterName   string     `json:"register_name"`
	Status         string     `json:"status"`
	BoundDeviceID  string     `json:"bound_device_id,omitempty"`
	LastIPAddress  string     `json:"last_ip_address,omitempty"`
	LastActiveAt   *time.Time `json:"last_active_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type RegisterCreateRequest struct {
	LocationID   string `json:"location_id"`
	RegisterName string `json:"register_name"`
}

type RegisterClaimRequest struct {
	DeviceID   string `json:"device_id"`
	LocationID string `json:"location_id"`
	RegisterID string `json:"register_id,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// RegisterClaimResult either carries the claimed register or, when no
// binding could be resolved, the active unbound registers the caller may
// retry with (capped at ten). The needs-assignment path performs no mutation.
type RegisterClaimResult struct {
	Register           *Register  `json:"register,omitempty"`
	NeedsAssignment    bool       `json:"needsAssignment,omitempty"`
	AvailableRegisters []Register `json:"availableRegisters,omitempty"`
}

type RegisterStatusRequest struct {
	Status string `json:"status"`
}

type DrawerSession struct {
	ID                    string           `json:"id"`
	SessionNumber         int              `json:"session_number"`
	RegisterID            string           `json:"register_id"`
	LocationID            string           `json:"location_id"`
	VendorID              string           `json:"vendor_id,omitempty"`
	Status                string           `json:"status"`
	OpenedBy              string           `json:"opened_by"`
	OpenedAt              time.Time        `json:"opened_at"`
	OpeningCash           decimal.Decimal  `json:"opening_cash"`
	TotalSales            decimal.Decimal  `json:"total_sales"`
	TotalCash             decimal.Decimal  `json:"total_cash"`
	TotalTransactions     int              `json:"total_transactions"`
	WalkInSales           int              `json:"walk_in_sales"`
	PickupOrdersFulfilled int              `json:"pickup_orders_fulfilled"`
	ClosedBy              string           `json:"closed_by,omitempty"`
	ClosedAt              *time.Time       `json:"closed_at,omitempty"`
	ClosingCash           *decimal.Decimal `json:"closing_cash,omitempty"`
	ExpectedCash          *decimal.Decimal `json:"expected_cash,omitempty"`
	CashDifference        *decimal.Decimal `json:"cash_difference,omitempty"`
	CloseStatus           string           `json:"close_status,omitempty"`
	ClosingNotes          string           `json:"closing_notes,omitempty"`
}

type SessionOpenRequest struct {
	RegisterID  string          `json:"register_id"`
	LocationID  string          `json:"location_id"`
	VendorID    string          `json:"vendor_id,omitempty"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type SessionOpenResult struct {
	Session DrawerSession `json:"session"`
	Created bool          `json:"created"`
}

type SaleAccrualRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	CashAmount  decimal.Decimal `json:"cash_amount"`
	WalkIn      bool            `json:"walk_in,omitempty"`
	PickupOrder bool            `json:"pickup_order,omitempty"`
}

type ReversalAccrualRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	CashAmount decimal.Decimal `json:"cash_amount"`
}

// AccrualResult reports the session after an accrual was applied. Clamped is
// set when a reversal would have driven a running total below zero and the
// total was floored at zero instead.
type AccrualResult struct {
	Session DrawerSession `json:"session"`
	Clamped bool          `json:"clamped,omitempty"`
}

// SessionCloseRequest carries the counted drawer amount. ClosingCash is a
// pointer so an absent field is distinguishable from a counted zero.
type SessionCloseRequest struct {
	ClosingCash  *decimal.Decimal `json:"closing_cash"`
	ClosingNotes string          `json:"closing_notes,omitempty"`
}

type SessionCloseResult struct {
	Session       DrawerSession `json:"session"`
	AlreadyClosed bool          `json:"already_closed,omitempty"`
}

type InventorySnapshot struct {
	ProductID   string           `json:"product_id"`
	LocationID  string           `json:"location_id"`
	Quantity    int              `json:"quantity"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type Movement struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"product_id"`
	MovementType   string           `json:"movement_type"`
	Quantity       int              `json:"quantity"`
	FromLocationID string           `json:"from_location_id,omitempty"`
	ToLocationID   string           `json:"to_location_id,omitempty"`
	QuantityBefore int              `json:"quantity_before"`
	QuantityAfter  int              `json:"quantity_after"`
	CostPerUnit    *decimal.Decimal `json:"cost_per_unit,omitempty"`
	ReferenceID    string           `json:"reference_id,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type InventoryInitializeRequest struct {
	ProductID   string           `json:"product_id"`
	LocationID  string           `json:"location_id"`
	Quantity    int              `json:"quantity"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit,omitempty"`
}

type InventoryAdjustRequest struct {
	ProductID    string           `json:"product_id"`
	LocationID   string           `json:"location_id"`
	Delta        int              `json:"delta"`
	MovementType string           `json:"movement_type,omitempty"`
	Reason       string           `json:"reason"`
	CostPerUnit  *decimal.Decimal `json:"cost_per_unit,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	ReferenceID  string           `json:"reference_id,omitempty"`
}

type InventoryTransferRequest struct {
	ProductID      string `json:"product_id"`
	FromLocationID string `json:"from_location_id"`
	ToLocationID   string `json:"to_location_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type InventoryMutationResult struct {
	Snapshot InventorySnapshot `json:"snapshot"`
	Movement Movement          `json:"movement"`
}

type InventoryTransferResult struct {
	From      InventorySnapshot `json:"from"`
	To        InventorySnapshot `json:"to"`
	Movements []Movement        `json:"movements"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	PONumber   string              `json:"po_number"`
	VendorID   string              `json:"vendor_id"`
	LocationID string              `json:"location_id"`
	Status     string              `json:"status"`
	Notes      string              `json:"notes,omitempty"`
	CreatedBy  string              `json:"created_by,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItem struct {
	ID                string          `json:"id"`
	PurchaseOrderID   string          `json:"purchase_order_id"`
	ProductID         string          `json:"product_id"`
	Quantity          int             `json:"quantity"`
	QuantityReceived  int             `json:"quantity_received"`
	QuantityRemaining int             `json:"quantity_remaining"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

type PurchaseOrderItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type PurchaseOrderCreateRequest struct {
	VendorID   string                     `json:"vendor_id"`
	LocationID string                     `json:"location_id"`
	Notes      string                     `json:"notes,omitempty"`
	Items      []PurchaseOrderItemRequest `json:"items"`
}

type ReceivingEvent struct {
	ID                  string    `json:"id"`
	PurchaseOrderID     string    `json:"purchase_order_id"`
	PurchaseOrderItemID string    `json:"purchase_order_item_id"`
	ProductID           string    `json:"product_id"`
	LocationID          string    `json:"location_id"`
	QuantityReceived    int       `json:"quantity_received"`
	Condition           string    `json:"condition"`
	Notes               string    `json:"notes,omitempty"`
	ReceivedBy          string    `json:"received_by"`
	ReceivedAt          time.Time `json:"received_at"`
}

type ReceiveItemRequest struct {
	Quantity  int    `json:"quantity_received_now"`
	Condition string `json:"condition,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type ReceiveItemResult struct {
	PurchaseOrder PurchaseOrder     `json:"purchase_order"`
	Item          PurchaseOrderItem `json:"item"`
	Event         ReceivingEvent    `json:"event"`
	Snapshot      InventorySnapshot `json:"snapshot"`
	Movement      Movement          `json:"movement"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClassifyCashDifference maps a close-time cash difference to its variance
// bucket. Zero is balanced, positive is over, negative is short.
func ClassifyCashDifference(diff decimal.Decimal) string {
	switch diff.Sign() {
	case 1:
		return CloseStatusOver
	case -1:
		return CloseStatusShort
	default:
		return CloseStatusBalanced
	}
}

// RollupPurchaseOrderStatus derives a purchase order's status purely from
// its items' received counts. It is recomputed from scratch after every
// receive so the status can never drift from item state.
func RollupPurchaseOrderStatus(items []PurchaseOrderItem) string {
	if len(items) == 0 {
		return POStatusOrdered
	}
	anyReceived := false
	allReceived := true
	for _, it := range items {
		if it.QuantityReceived > 0 {
			anyReceived = true
		}
		if it.QuantityReceived < it.Quantity {
			allReceived = false
		}
	}
	switch {
	case allReceived:
		return POStatusReceived
	case anyReceived:
		return POStatusPartiallyReceived
	default:
		return POStatusOrdered
	}
}

// ValidMovementType reports whether a movement type is part of the ledger's
// vocabulary.
func ValidMovementType(movementType string) bool {
	switch movementType {
	case MovementTypePurchase, MovementTypeSale, MovementTypeTransfer,
		MovementTypeAdjustment, MovementTypePOReceipt, MovementTypeVoid,
		MovementTypeRefund:
		return true
	default:
		return false
	}
}

const (
	RegisterStatusActive   = "active"
	RegisterStatusDisabled = "disabled"
)

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	CloseStatusBalanced = "balanced"
	CloseStatusOver     = "over"
	CloseStatusShort    = "short"
)

const (
	MovementTypePurchase   = "purchase"
	MovementTypeSale       = "sale"
	MovementTypeTransfer   = "transfer"
	MovementTypeAdjustment = "adjustment"
	MovementTypePOReceipt  = "po_receipt"
	MovementTypeVoid       = "void"
	MovementTypeRefund     = "refund"
)

const (
	POStatusDraft             = "draft"
	POStatusOrdered           = "ordered"
	POStatusPartiallyReceived = "partially_received"
	POStatusReceived          = "received"
	POStatusCancelled         = "cancelled"
)

const (
	ReceiveConditionGood    = "good"
	ReceiveConditionDamaged = "damaged"
	ReceiveConditionExpired = "expired"
)

const (
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// NeedsAssignmentCap bounds the availableRegisters list in a claim response.
const NeedsAssignmentCap = 10

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/metrics"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: manager role required", store.ErrValidation)
	}

	req.VendorID = strings.TrimSpace(req.VendorID)
	if req.VendorID == "" {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: vendor_id is required", store.ErrValidation)
	}
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: at least one item is required", store.ErrValidation)
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		it.ProductID = strings.TrimSpace(it.ProductID)
		if it.ProductID == "" || it.Quantity < 1 {
			return domain.PurchaseOrder{}, fmt.Errorf("%w: every item needs a product_id and positive quantity", store.ErrValidation)
		}
		if it.UnitPrice.Sign() < 0 {
			return domain.PurchaseOrder{}, fmt.Errorf("%w: unit_price cannot be negative", store.ErrValidation)
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		VendorID:   req.VendorID,
		LocationID: req.LocationID,
		Status:     domain.POStatusDraft,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  actor.Username,
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_create", "purchase_order", created.ID, fmt.Sprintf("vendor=%s,items=%d", created.VendorID, len(created.Items)))
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	if purchaseOrderID == "" {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order id is required", store.ErrValidation)
	}
	po, err := s.repo.GetPurchaseOrderByID(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, locationID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	return s.repo.ListPurchaseOrders(ctx, locationID, status, limit)
}

func (s *Service) SubmitPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: manager role required", store.ErrValidation)
	}
	if purchaseOrderID == "" {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order id is required", store.ErrValidation)
	}

	po, err := s.repo.TransitionPurchaseOrder(ctx, purchaseOrderID, []string{domain.POStatusDraft}, domain.POStatusOrdered, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_submit", "purchase_order", po.ID, fmt.Sprintf("po_number=%s", po.PONumber))
	return *po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: manager role required", store.ErrValidation)
	}
	if purchaseOrderID == "" {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order id is required", store.ErrValidation)
	}

	po, err := s.repo.TransitionPurchaseOrder(ctx, purchaseOrderID,
		[]string{domain.POStatusDraft, domain.POStatusOrdered}, domain.POStatusCancelled, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_cancel", "purchase_order", po.ID, fmt.Sprintf("po_number=%s", po.PONumber))
	return *po, nil
}

// ReceivePurchaseOrderItem books a delivery against one line of a purchase
// order: stock goes up by the received quantity, an immutable receiving event
// is recorded, and the order's status is re-derived from its items. Receiving
// more than the line still has outstanding is rejected.
func (s *Service) ReceivePurchaseOrderItem(ctx context.Context, purchaseOrderItemID string, req domain.ReceiveItemRequest) (domain.ReceiveItemResult, error) {
	if purchaseOrderItemID == "" {
		return domain.ReceiveItemResult{}, fmt.Errorf("%w: purchase order item id is required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.ReceiveItemResult{}, fmt.Errorf("%w: quantity_received_now must be positive", store.ErrValidation)
	}
	if req.Condition == "" {
		req.Condition = domain.ReceiveConditionGood
	}
	switch req.Condition {
	case domain.ReceiveConditionGood, domain.ReceiveConditionDamaged, domain.ReceiveConditionExpired:
	default:
		return domain.ReceiveItemResult{}, fmt.Errorf("%w: unknown condition %q", store.ErrValidation, req.Condition)
	}

	result, err := s.repo.ReceivePurchaseOrderItem(ctx, purchaseOrderItemID, req, s.actorUsername(ctx), time.Now().UTC())
	if err != nil {
		return domain.ReceiveItemResult{}, err
	}

	metrics.ReceivingEvents.Inc()
	metrics.InventoryMovements.WithLabelValues(domain.MovementTypePOReceipt).Inc()
	s.logAudit(ctx, "purchase_order_receive", "purchase_order_item", purchaseOrderItemID,
		fmt.Sprintf("po=%s,quantity=%d,condition=%s", result.PurchaseOrder.ID, req.Quantity, req.Condition))
	return *result, nil
}

func (s *Service) ListReceivingEvents(ctx context.Context, purchaseOrderID string) ([]domain.ReceivingEvent, error) {
	if purchaseOrderID == "" {
		return nil, fmt.Errorf("%w: purchase order id is required", store.ErrValidation)
	}
	return s.repo.ListReceivingEvents(ctx, purchaseOrderID)
}

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

func (s *Service) GetInventory(ctx context.Context, productID string, locationID string) (domain.InventorySnapshot, error) {
	if productID == "" || locationID == "" {
		return domain.InventorySnapshot{}, fmt.Errorf("%w: product_id and location_id are required", store.ErrValidation)
	}
	snap, err := s.repo.GetInventory(ctx, productID, locationID)
	if err != nil {
		return domain.InventorySnapshot{}, err
	}
	return *snap, nil
}

func (s *Service) ListInventory(ctx context.Context, locationID string, limit int) ([]domain.InventorySnapshot, error) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	return s.repo.ListInventoryByLocation(ctx, locationID, limit)
}

func (s *Service) InitializeInventory(ctx context.Context, req domain.InventoryInitializeRequest) (domain.InventoryMutationResult, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
	}
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	// The opening movement must carry a positive quantity, so an empty
	// snapshot cannot be initialized ahead of stock arriving.
	if req.Quantity < 1 {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}
	if req.CostPerUnit != nil && req.CostPerUnit.Sign() < 0 {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: cost_per_unit cannot be negative", store.ErrValidation)
	}

	result, err := s.repo.InitializeInventory(ctx, req, s.actorUsername(ctx), time.Now().UTC())
	if err != nil {
		return domain.InventoryMutationResult{}, err
	}

	metrics.InventoryMovements.WithLabelValues(result.Movement.MovementType).Inc()
	s.logAudit(ctx, "inventory_initialize", "inventory", req.ProductID, fmt.Sprintf("location=%s,quantity=%d", req.LocationID, req.Quantity))
	return *result, nil
}

// AdjustInventory applies a signed quantity delta and records the movement.
// A debit that would take the snapshot below zero is rejected whole; there
// is no partial application and no silent floor.
func (s *Service) AdjustInventory(ctx context.Context, req domain.InventoryAdjustRequest) (domain.InventoryMutationResult, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
	}
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if req.Delta == 0 {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: delta cannot be zero", store.ErrValidation)
	}
	if req.MovementType == "" {
		req.MovementType = domain.MovementTypeAdjustment
	}
	if !domain.ValidMovementType(req.MovementType) {
		return domain.InventoryMutationResult{}, fmt.Errorf("%w: unknown movement_type %q", store.ErrValidation, req.MovementType)
	}

	result, err := s.repo.AdjustInventory(ctx, req, s.actorUsername(ctx), time.Now().UTC())
	if err != nil {
		return domain.InventoryMutationResult{}, err
	}

	metrics.InventoryMovements.WithLabelValues(result.Movement.MovementType).Inc()
	s.logAudit(ctx, "inventory_adjust", "inventory", req.ProductID, fmt.Sprintf("location=%s,delta=%d,type=%s", req.LocationID, req.Delta, req.MovementType))
	return *result, nil
}

// TransferInventory moves stock between two locations as one unit of work:
// either both sides move and two movement rows land, or nothing changes.
func (s *Service) TransferInventory(ctx context.Context, req domain.InventoryTransferRequest) (domain.InventoryTransferResult, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.FromLocationID == "" || req.ToLocationID == "" {
		return domain.InventoryTransferResult{}, fmt.Errorf("%w: product_id, from_location_id and to_location_id are required", store.ErrValidation)
	}
	if req.FromLocationID == req.ToLocationID {
		return domain.InventoryTransferResult{}, fmt.Errorf("%w: transfer source and destination must differ", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.InventoryTransferResult{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}

	result, err := s.repo.TransferInventory(ctx, req, s.actorUsername(ctx), time.Now().UTC())
	if err != nil {
		return domain.InventoryTransferResult{}, err
	}

	metrics.InventoryMovements.WithLabelValues(domain.MovementTypeTransfer).Add(2)
	s.logAudit(ctx, "inventory_transfer", "inventory", req.ProductID, fmt.Sprintf("from=%s,to=%s,quantity=%d", req.FromLocationID, req.ToLocationID, req.Quantity))
	return *result, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, locationID string, limit int) ([]domain.Movement, error) {
	return s.repo.ListMovements(ctx, productID, locationID, limit)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/metrics"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

func (s *Service) CreateRegister(ctx context.Context, req domain.RegisterCreateRequest) (domain.Register, error) {
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	req.RegisterName = strings.TrimSpace(req.RegisterName)
	if req.RegisterName == "" {
		return domain.Register{}, fmt.Errorf("%w: register_name is required", store.ErrValidation)
	}

	created, err := s.repo.CreateRegister(ctx, domain.Register{
		LocationID:   req.LocationID,
		RegisterName: req.RegisterName,
		Status:       domain.RegisterStatusActive,
	})
	if err != nil {
		return domain.Register{}, err
	}

	s.logAudit(ctx, "register_create", "register", created.ID, fmt.Sprintf("location=%s,name=%s", created.LocationID, created.RegisterName))
	return *created, nil
}

func (s *Service) ListRegisters(ctx context.Context, locationID string) ([]domain.Register, error) {
	return s.repo.ListRegisters(ctx, locationID)
}

// ClaimRegister resolves which register a device should operate as. With an
// explicit register id the binding is overwritten outright, last writer wins.
// Without one the device's existing binding is looked up, and when nothing is
// bound the caller gets back the assignable registers instead of a register.
// That last path mutates nothing.
func (s *Service) ClaimRegister(ctx context.Context, req domain.RegisterClaimRequest) (domain.RegisterClaimResult, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		return domain.RegisterClaimResult{}, fmt.Errorf("%w: device_id is required", store.ErrValidation)
	}
	if strings.TrimSpace(req.LocationID) == "" {
		return domain.RegisterClaimResult{}, fmt.Errorf("%w: location_id is required", store.ErrValidation)
	}
	now := time.Now().UTC()

	if req.RegisterID != "" {
		reg, err := s.repo.GetRegisterByID(ctx, req.RegisterID)
		if err != nil {
			metrics.RegisterClaims.WithLabelValues("error").Inc()
			return domain.RegisterClaimResult{}, err
		}
		if reg.LocationID != req.LocationID {
			// A register from another location is invisible to this claim.
			metrics.RegisterClaims.WithLabelValues("error").Inc()
			return domain.RegisterClaimResult{}, store.ErrNotFound
		}
		if reg.Status != domain.RegisterStatusActive {
			metrics.RegisterClaims.WithLabelValues("error").Inc()
			return domain.RegisterClaimResult{}, fmt.Errorf("%w: register %s is disabled", store.ErrConflict, reg.ID)
		}

		bound, err := s.repo.BindRegisterDevice(ctx, req.RegisterID, req.DeviceID, req.IPAddress, now)
		if err != nil {
			metrics.RegisterClaims.WithLabelValues("error").Inc()
			return domain.RegisterClaimResult{}, err
		}
		s.logAudit(ctx, "register_claim", "register", bound.ID, fmt.Sprintf("device=%s,location=%s", req.DeviceID, req.LocationID))
		metrics.RegisterClaims.WithLabelValues("bound").Inc()
		return domain.RegisterClaimResult{Register: bound}, nil
	}

	existing, err := s.repo.FindRegisterByDevice(ctx, req.LocationID, req.DeviceID)
	if err == nil {
		touched, err := s.repo.TouchRegister(ctx, existing.ID, req.IPAddress, now)
		if err != nil {
			return domain.RegisterClaimResult{}, err
		}
		metrics.RegisterClaims.WithLabelValues("recognized").Inc()
		return domain.RegisterClaimResult{Register: touched}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		metrics.RegisterClaims.WithLabelValues("error").Inc()
		return domain.RegisterClaimResult{}, err
	}

	available, err := s.repo.ListUnassignedRegisters(ctx, req.LocationID, domain.NeedsAssignmentCap)
	if err != nil {
		metrics.RegisterClaims.WithLabelValues("error").Inc()
		return domain.RegisterClaimResult{}, err
	}
	metrics.RegisterClaims.WithLabelValues("needs_assignment").Inc()
	return domain.RegisterClaimResult{
		NeedsAssignment:    true,
		AvailableRegisters: available,
	}, nil
}

func (s *Service) SetRegisterStatus(ctx context.Context, registerID string, req domain.RegisterStatusRequest) (domain.Register, error) {
	if registerID == "" {
		return domain.Register{}, fmt.Errorf("%w: register id is required", store.ErrValidation)
	}
	if req.Status != domain.RegisterStatusActive && req.Status != domain.RegisterStatusDisabled {
		return domain.Register{}, fmt.Errorf("%w: status must be active or disabled", store.ErrValidation)
	}

	updated, err := s.repo.SetRegisterStatus(ctx, registerID, req.Status)
	if err != nil {
		return domain.Register{}, err
	}

	s.logAudit(ctx, "register_status", "register", updated.ID, fmt.Sprintf("status=%s", req.Status))
	return *updated, nil
}

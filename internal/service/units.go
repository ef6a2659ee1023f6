package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/store"
	"tokoerp/backend/internal/unitconv"
)

func (s *Service) ListUnits(ctx context.Context, activeOnly bool) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx, activeOnly)
}

func (s *Service) GetUnit(ctx context.Context, id int64) (domain.Unit, error) {
	u, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return domain.Unit{}, err
	}
	return *u, nil
}

func (s *Service) CreateUnit(ctx context.Context, req domain.UnitCreateRequest) (domain.Unit, error) {
	unit := domain.Unit{
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		BaseUnitID:     req.BaseUnitID,
		Operator:       strings.TrimSpace(req.Operator),
		OperationValue: req.OperationValue,
		Active:         true,
	}
	if req.Active != nil {
		unit.Active = *req.Active
	}

	if err := s.checkUnit(ctx, unit); err != nil {
		return domain.Unit{}, err
	}

	created, err := s.repo.CreateUnit(ctx, unit)
	if err != nil {
		return domain.Unit{}, err
	}
	s.logger.Info("unit created", s.actorField(ctx), zap.Int64("unit_id", created.ID), zap.String("code", created.Code))
	return *created, nil
}

func (s *Service) UpdateUnit(ctx context.Context, id int64, req domain.UnitUpdateRequest) (domain.Unit, error) {
	existing, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return domain.Unit{}, err
	}

	unit := *existing
	if req.Code != nil {
		unit.Code = strings.TrimSpace(*req.Code)
	}
	if req.Name != nil {
		unit.Name = strings.TrimSpace(*req.Name)
	}
	switch {
	case req.ClearBaseUnit:
		unit.BaseUnitID = nil
		unit.Operator = ""
		unit.OperationValue = nil
	case req.BaseUnitID != nil:
		unit.BaseUnitID = req.BaseUnitID
	}
	if req.Operator != nil && !req.ClearBaseUnit {
		unit.Operator = strings.TrimSpace(*req.Operator)
	}
	if req.OperationValue != nil && !req.ClearBaseUnit {
		unit.OperationValue = req.OperationValue
	}
	if req.Active != nil {
		unit.Active = *req.Active
	}

	if err := s.checkUnit(ctx, unit); err != nil {
		return domain.Unit{}, err
	}

	updated, err := s.repo.UpdateUnit(ctx, unit)
	if err != nil {
		return domain.Unit{}, err
	}
	s.chains.invalidate(ctx, id)
	s.logger.Info("unit updated", s.actorField(ctx), zap.Int64("unit_id", id), zap.String("code", updated.Code))
	return *updated, nil
}

// checkUnit validates a unit before it is written. Derived units must reach a
// root through existing units without a cycle and within the depth limit.
func (s *Service) checkUnit(ctx context.Context, unit domain.Unit) error {
	if unit.Code == "" || unit.Name == "" {
		return fmt.Errorf("code and name are required: %w", store.ErrInvalidInput)
	}
	if err := unitconv.Validate(unit); err != nil {
		return err
	}
	if unit.IsBase() {
		return nil
	}

	if _, err := s.chains.unit(ctx, *unit.BaseUnitID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &unitconv.ConversionError{Err: unitconv.ErrUnitNotFound, UnitID: *unit.BaseUnitID, Detail: "base unit does not exist"}
		}
		return err
	}

	chain := unitconv.Chain{}
	if err := s.chains.load(ctx, chain, unit); err != nil {
		return err
	}
	_, _, err := unitconv.NewEngine(chain, s.maxDepth).ResolveToBase(unit, 1)
	return err
}

func (s *Service) DeleteUnit(ctx context.Context, id int64) error {
	if _, err := s.repo.GetUnit(ctx, id); err != nil {
		return err
	}
	_, err := s.BulkUnits(ctx, domain.UnitBulkRequest{Action: domain.BulkDestroy, UnitIDs: []int64{id}})
	return err
}

func (s *Service) BulkUnits(ctx context.Context, req domain.UnitBulkRequest) (domain.UnitBulkResponse, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	ids := uniqueIDs(req.UnitIDs)
	if len(ids) == 0 {
		return domain.UnitBulkResponse{}, fmt.Errorf("unit_ids is required: %w", store.ErrInvalidInput)
	}

	var (
		affected int
		err      error
	)
	switch action {
	case domain.BulkActivate, domain.BulkDeactivate:
		affected, err = s.repo.SetUnitsActive(ctx, ids, action == domain.BulkActivate)
	case domain.BulkDestroy:
		affected, err = s.repo.DeleteUnits(ctx, ids)
		if errors.Is(err, store.ErrInUse) {
			err = fmt.Errorf("%w: %w", ErrUnitInUse, err)
		}
	default:
		return domain.UnitBulkResponse{}, fmt.Errorf("unknown bulk action %q: %w", req.Action, store.ErrInvalidInput)
	}
	if err != nil {
		return domain.UnitBulkResponse{}, err
	}

	s.chains.invalidate(ctx, ids...)
	s.logger.Info("unit bulk action", s.actorField(ctx), zap.String("action", action), zap.Int64s("unit_ids", ids), zap.Int("affected", affected))
	return domain.UnitBulkResponse{Action: action, Affected: affected, UnitIDs: ids}, nil
}

func (s *Service) ConvertQuantity(ctx context.Context, req domain.ConvertRequest) (domain.ConvertResponse, error) {
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return domain.ConvertResponse{}, fmt.Errorf("quantity must be finite: %w", store.ErrInvalidInput)
	}

	from, err := s.lookupUnit(ctx, req.FromUnitID)
	if err != nil {
		return domain.ConvertResponse{}, err
	}
	to, err := s.lookupUnit(ctx, req.ToUnitID)
	if err != nil {
		return domain.ConvertResponse{}, err
	}

	chain := unitconv.Chain{}
	if err := s.chains.load(ctx, chain, from, to); err != nil {
		return domain.ConvertResponse{}, err
	}
	engine := unitconv.NewEngine(chain, s.maxDepth)

	result, err := engine.Convert(from, to, req.Quantity)
	if err != nil {
		return domain.ConvertResponse{}, err
	}
	resp := domain.ConvertResponse{
		FromUnit: from.Code,
		ToUnit:   to.Code,
		Quantity: req.Quantity,
		Result:   result,
	}

	// Identity conversions succeed even when the unit's chain is broken; the
	// base fields are then left out.
	root, baseQty, err := engine.ResolveToBase(from, req.Quantity)
	if err != nil {
		if from.ID != to.ID {
			return domain.ConvertResponse{}, err
		}
		return resp, nil
	}
	resp.BaseUnit = root.Code
	resp.BaseQuantity = &baseQty
	return resp, nil
}

// ResolveToBase expresses quantity of the unit in its root unit.
func (s *Service) ResolveToBase(ctx context.Context, unitID int64, quantity float64) (domain.Unit, float64, error) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return domain.Unit{}, 0, fmt.Errorf("quantity must be finite: %w", store.ErrInvalidInput)
	}
	unit, err := s.lookupUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, 0, err
	}
	chain := unitconv.Chain{}
	if err := s.chains.load(ctx, chain, unit); err != nil {
		return domain.Unit{}, 0, err
	}
	return unitconv.NewEngine(chain, s.maxDepth).ResolveToBase(unit, quantity)
}

func (s *Service) lookupUnit(ctx context.Context, id int64) (domain.Unit, error) {
	u, err := s.chains.unit(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Unit{}, &unitconv.ConversionError{Err: unitconv.ErrUnitNotFound, UnitID: id}
	}
	return u, err
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id < 1 || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

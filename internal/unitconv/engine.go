// Package unitconv converts quantities between units that share a base unit.
//
// A derived unit names its base unit together with an operator and operand
// describing how one of its quantities becomes a base quantity, e.g. a box
// with base unit "piece", operator "*" and operand 12. Chains of derived
// units are walked up to their root; the engine never performs I/O and only
// reads units through a Lookup.
package unitconv

import (
	"fmt"
	"math"

	"tokoerp/backend/internal/domain"
)

const DefaultMaxDepth = 32

// Lookup returns a unit by id. Implementations must be free of side effects,
// the engine may ask for the same unit more than once.
type Lookup interface {
	Unit(id int64) (domain.Unit, bool)
}

// Chain is a pre-fetched set of units keyed by id.
type Chain map[int64]domain.Unit

func (c Chain) Unit(id int64) (domain.Unit, bool) {
	u, ok := c[id]
	return u, ok
}

// Add stores the units in the chain and returns it for chaining.
func (c Chain) Add(units ...domain.Unit) Chain {
	for _, u := range units {
		c[u.ID] = u
	}
	return c
}

type Engine struct {
	lookup   Lookup
	maxDepth int
}

func NewEngine(lookup Lookup, maxDepth int) *Engine {
	if lookup == nil {
		lookup = Chain{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{lookup: lookup, maxDepth: maxDepth}
}

func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// ResolveToBase walks the base-unit chain of unit and returns the root unit
// together with quantity expressed in it.
func (e *Engine) ResolveToBase(unit domain.Unit, quantity float64) (domain.Unit, float64, error) {
	path, err := e.path(unit)
	if err != nil {
		return domain.Unit{}, 0, err
	}

	q := quantity
	for _, step := range path[:len(path)-1] {
		q, err = toBase(step, q)
		if err != nil {
			return domain.Unit{}, 0, err
		}
	}
	return path[len(path)-1], q, nil
}

// Convert expresses quantity of from in to. Both units must resolve to the
// same root unit.
func (e *Engine) Convert(from, to domain.Unit, quantity float64) (float64, error) {
	if from.ID == to.ID {
		return quantity, nil
	}

	fromRoot, baseQty, err := e.ResolveToBase(from, quantity)
	if err != nil {
		return 0, err
	}

	toPath, err := e.path(to)
	if err != nil {
		return 0, err
	}
	toRoot := toPath[len(toPath)-1]
	if toRoot.ID != fromRoot.ID {
		return 0, fail(ErrIncompatibleUnits, to.ID, fmt.Sprintf("%s resolves to %s, %s resolves to %s", from.Code, fromRoot.Code, to.Code, toRoot.Code))
	}

	q := baseQty
	for i := len(toPath) - 2; i >= 0; i-- {
		q, err = fromBase(toPath[i], q)
		if err != nil {
			return 0, err
		}
	}
	return q, nil
}

// path returns unit followed by each of its ancestors, ending at the root.
func (e *Engine) path(unit domain.Unit) ([]domain.Unit, error) {
	path := []domain.Unit{unit}
	seen := map[int64]struct{}{unit.ID: {}}

	current := unit
	for !current.IsBase() {
		if err := validateStep(current); err != nil {
			return nil, err
		}
		if len(path) > e.maxDepth {
			return nil, fail(ErrChainTooLong, unit.ID, fmt.Sprintf("more than %d hops", e.maxDepth))
		}

		next, ok := e.lookup.Unit(*current.BaseUnitID)
		if !ok {
			return nil, fail(ErrUnitNotFound, *current.BaseUnitID, fmt.Sprintf("base unit of %d", current.ID))
		}
		if _, dup := seen[next.ID]; dup {
			return nil, fail(ErrCycleDetected, unit.ID, fmt.Sprintf("unit %d revisited", next.ID))
		}
		seen[next.ID] = struct{}{}
		path = append(path, next)
		current = next
	}
	if current.Operator != "" || current.OperationValue != nil {
		return nil, fail(ErrInvalidUnitDefinition, current.ID, "operator and operation value require a base unit")
	}
	return path, nil
}

func toBase(u domain.Unit, q float64) (float64, error) {
	v := *u.OperationValue
	switch u.Operator {
	case domain.OperatorMultiply:
		return q * v, nil
	case domain.OperatorDivide:
		if v == 0 {
			return 0, fail(ErrDivisionByZero, u.ID, "operator / with operand 0")
		}
		return q / v, nil
	case domain.OperatorAdd:
		return q + v, nil
	case domain.OperatorSubtract:
		return q - v, nil
	}
	return 0, fail(ErrInvalidUnitDefinition, u.ID, fmt.Sprintf("unknown operator %q", u.Operator))
}

func fromBase(u domain.Unit, q float64) (float64, error) {
	v := *u.OperationValue
	switch u.Operator {
	case domain.OperatorMultiply:
		if v == 0 {
			return 0, fail(ErrDivisionByZero, u.ID, "inverse of operator * with operand 0")
		}
		return q / v, nil
	case domain.OperatorDivide:
		if v == 0 {
			return 0, fail(ErrDivisionByZero, u.ID, "operator / with operand 0")
		}
		return q * v, nil
	case domain.OperatorAdd:
		return q - v, nil
	case domain.OperatorSubtract:
		return q + v, nil
	}
	return 0, fail(ErrInvalidUnitDefinition, u.ID, fmt.Sprintf("unknown operator %q", u.Operator))
}

// Validate checks the static shape of a unit: operator and operand are set
// exactly when a base unit is, the operator is known, the operand is a finite
// non-negative number and the unit does not name itself as base.
func Validate(u domain.Unit) error {
	if u.BaseUnitID == nil {
		if u.Operator != "" || u.OperationValue != nil {
			return fail(ErrInvalidUnitDefinition, u.ID, "operator and operation value require a base unit")
		}
		return nil
	}
	if *u.BaseUnitID == u.ID && u.ID != 0 {
		return fail(ErrInvalidUnitDefinition, u.ID, "unit cannot be its own base unit")
	}
	return validateStep(u)
}

// validateStep checks operator and operand of a derived unit. Self-references
// are left to the traversal, which reports them as cycles.
func validateStep(u domain.Unit) error {
	if !IsOperator(u.Operator) {
		return fail(ErrInvalidUnitDefinition, u.ID, fmt.Sprintf("operator %q is not one of * / + -", u.Operator))
	}
	if u.OperationValue == nil {
		return fail(ErrInvalidUnitDefinition, u.ID, "operation value is required with a base unit")
	}
	v := *u.OperationValue
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fail(ErrInvalidUnitDefinition, u.ID, "operation value must be a non-negative number")
	}
	return nil
}

func IsOperator(op string) bool {
	switch op {
	case domain.OperatorMultiply, domain.OperatorDivide, domain.OperatorAdd, domain.OperatorSubtract:
		return true
	}
	return false
}

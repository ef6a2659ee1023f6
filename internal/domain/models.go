package domain

import "time"

const (
	OperatorMultiply = "*"
	OperatorDivide   = "/"
	OperatorAdd      = "+"
	OperatorSubtract = "-"
)

const DefaultGuard = "web"

type Unit struct {
	ID             int64    `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	BaseUnitID     *int64   `json:"base_unit,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	OperationValue *float64 `json:"operation_value,omitempty"`
	Active         bool     `json:"is_active"`
}

// IsBase reports whether the unit is the root of its conversion chain.
func (u Unit) IsBase() bool {
	return u.BaseUnitID == nil
}

type UnitCreateRequest struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	BaseUnitID     *int64   `json:"base_unit,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	OperationValue *float64 `json:"operation_value,omitempty"`
	Active         *bool    `json:"-"`
}

type UnitUpdateRequest struct {
	Code           *string  `json:"code,omitempty"`
	Name           *string  `json:"name,omitempty"`
	BaseUnitID     *int64   `json:"base_unit,omitempty"`
	ClearBaseUnit  bool     `json:"clear_base_unit,omitempty"`
	Operator       *string  `json:"operator,omitempty"`
	OperationValue *float64 `json:"operation_value,omitempty"`
	Active         *bool    `json:"-"`
}

type UnitBulkRequest struct {
	Action  string  `json:"action"`
	UnitIDs []int64 `json:"unit_ids"`
}

type UnitBulkResponse struct {
	Action   string  `json:"action"`
	Affected int     `json:"affected"`
	UnitIDs  []int64 `json:"unit_ids"`
}

type ConvertRequest struct {
	FromUnitID int64   `json:"from_unit_id"`
	ToUnitID   int64   `json:"to_unit_id"`
	Quantity   float64 `json:"quantity"`
}

type ConvertResponse struct {
	FromUnit     string  `json:"from_unit"`
	ToUnit       string  `json:"to_unit"`
	Quantity     float64 `json:"quantity"`
	Result       float64 `json:"result"`
	BaseUnit     string   `json:"base_unit,omitempty"`
	BaseQuantity *float64 `json:"base_quantity,omitempty"`
}

type Permission struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	GuardName string `json:"guard_name"`
	Module    string `json:"module"`
}

// PermissionSeed is a catalog entry before it is stored.
type PermissionSeed struct {
	Name  string `json:"name"`
	Guard string `json:"guard_name"`
}

// RoleMapping pairs a catalog permission with the role that receives it when seeding.
type RoleMapping struct {
	Permission string `json:"permission"`
	Role       string `json:"role"`
}

type PermissionGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	GuardName string    `json:"guard_name"`
	CreatedAt time.Time `json:"created_at"`
}

type RoleCreateRequest struct {
	Name      string `json:"name"`
	GuardName string `json:"guard_name"`
}

type RolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type RolePermissionsResponse struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

type SeedResponse struct {
	Role                string `json:"role"`
	PermissionsInserted int    `json:"permissions_inserted"`
	MappingsInserted    int    `json:"mappings_inserted"`
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
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	BulkActivate   = "activate"
	BulkDeactivate = "deactivate"
	BulkDestroy    = "destroy"
)

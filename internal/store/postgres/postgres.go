package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

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

const schema = `
CREATE TABLE IF NOT EXISTS units (
	id              BIGSERIAL PRIMARY KEY,
	code            TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL UNIQUE,
	base_unit_id    BIGINT,
	operator        TEXT NOT NULL DEFAULT '',
	operation_value DOUBLE PRECISION,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- unit codes and names are unique regardless of case
CREATE UNIQUE INDEX IF NOT EXISTS units_code_lower_key ON units (lower(code));
CREATE UNIQUE INDEX IF NOT EXISTS units_name_lower_key ON units (lower(name));

CREATE TABLE IF NOT EXISTS permissions (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	guard_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, guard_name)
);

CREATE TABLE IF NOT EXISTS roles (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	guard_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, guard_name)
);

CREATE TABLE IF NOT EXISTS role_has_permissions (
	role_id       BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
	PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS app_users (
	username   TEXT PRIMARY KEY,
	password   TEXT NOT NULL,
	role       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables the store needs. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const unitColumns = `id, code, name, base_unit_id, operator, operation_value, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (domain.Unit, error) {
	var (
		u     domain.Unit
		base  sql.NullInt64
		value sql.NullFloat64
	)
	if err := row.Scan(&u.ID, &u.Code, &u.Name, &base, &u.Operator, &value, &u.Active); err != nil {
		return domain.Unit{}, err
	}
	if base.Valid {
		v := base.Int64
		u.BaseUnitID = &v
	}
	if value.Valid {
		v := value.Float64
		u.OperationValue = &v
	}
	return u, nil
}

func scanUnits(rows *sql.Rows) ([]domain.Unit, error) {
	defer rows.Close()

	units := make([]domain.Unit, 0, 32)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *Store) ListUnits(ctx context.Context, activeOnly bool) ([]domain.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+`
		FROM units
		WHERE ($1 = false OR is_active = true)
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (s *Store) GetUnit(ctx context.Context, id int64) (*domain.Unit, error) {
	u, err := scanUnit(s.db.QueryRowContext(ctx, `
		SELECT `+unitColumns+`
		FROM units
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Code) == "" || strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockBaseUnit(ctx, tx, unit.BaseUnitID); err != nil {
		return nil, err
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO units (code, name, base_unit_id, operator, operation_value, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING id
	`, unit.Code, unit.Name, nullableInt64(unit.BaseUnitID), unit.Operator, nullableFloat64(unit.OperationValue), unit.Active).Scan(&unit.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := unit
	return &created, nil
}

func (s *Store) UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Code) == "" || strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockBaseUnit(ctx, tx, unit.BaseUnitID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE units
		SET code = $2, name = $3, base_unit_id = $4, operator = $5, operation_value = $6, is_active = $7, updated_at = now()
		WHERE id = $1
	`, unit.ID, unit.Code, unit.Name, nullableInt64(unit.BaseUnitID), unit.Operator, nullableFloat64(unit.OperationValue), unit.Active)
	if err != nil {
		return nil, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated := unit
	return &updated, nil
}

// lockBaseUnit holds a share lock on the base unit until the transaction ends
// so a concurrent DeleteUnits either sees the new dependent or runs first.
func lockBaseUnit(ctx context.Context, tx *sql.Tx, baseID *int64) error {
	if baseID == nil {
		return nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM units WHERE id = $1 FOR SHARE`, *baseID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("base unit %d: %w", *baseID, store.ErrNotFound)
	}
	return err
}

func (s *Store) SetUnitsActive(ctx context.Context, ids []int64, active bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET is_active = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, active)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) DeleteUnits(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// Writers naming one of these units as base wait on this lock.
	if _, err := tx.ExecContext(ctx, `SELECT id FROM units WHERE id = ANY($1) FOR UPDATE`, ids); err != nil {
		return 0, err
	}

	var (
		baseID int64
		code   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT base_unit_id, code
		FROM units
		WHERE base_unit_id = ANY($1) AND is_active AND NOT (id = ANY($1))
		ORDER BY id
		LIMIT 1
	`, ids).Scan(&baseID, &code)
	switch {
	case err == nil:
		return 0, fmt.Errorf("unit %d is the base unit of %s: %w", baseID, code, store.ErrInUse)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, err
	}

	// base_unit_id carries no foreign key: inactive dependents keep a
	// dangling reference and fail conversion with a not-found error.
	res, err := tx.ExecContext(ctx, `DELETE FROM units WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) ListPermissions(ctx context.Context, guard string) ([]domain.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, guard_name
		FROM permissions
		WHERE ($1 = '' OR guard_name = $1)
		ORDER BY id
	`, guard)
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]domain.Permission, error) {
	defer rows.Close()

	perms := make([]domain.Permission, 0, 256)
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.GuardName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) UpsertPermissions(ctx context.Context, seeds []domain.PermissionSeed) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, seed := range seeds {
		if seed.Name == "" || seed.Guard == "" {
			return 0, store.ErrInvalidInput
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (name, guard_name, created_at)
			VALUES ($1,$2,now())
			ON CONFLICT (name, guard_name) DO NOTHING
		`, seed.Name, seed.Guard)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, guard_name, created_at
		FROM roles
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]domain.Role, 0, 8)
	for rows.Next() {
		var r domain.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.GuardName, &r.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (*domain.Role, error) {
	var r domain.Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, guard_name, created_at
		FROM roles
		WHERE id = $1
	`, id).Scan(&r.ID, &r.Name, &r.GuardName, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string, guard string) (*domain.Role, error) {
	var r domain.Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, guard_name, created_at
		FROM roles
		WHERE name = $1 AND guard_name = $2
	`, name, guard).Scan(&r.ID, &r.Name, &r.GuardName, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateRole(ctx context.Context, role domain.Role) (*domain.Role, error) {
	if role.Name == "" || role.GuardName == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, guard_name, created_at)
		VALUES ($1,$2,now())
		RETURNING id, created_at
	`, role.Name, role.GuardName).Scan(&role.ID, &role.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &role, nil
}

func (s *Store) EnsureRole(ctx context.Context, name string, guard string) (*domain.Role, error) {
	if name == "" || guard == "" {
		return nil, store.ErrInvalidInput
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (name, guard_name, created_at)
		VALUES ($1,$2,now())
		ON CONFLICT (name, guard_name) DO NOTHING
	`, name, guard); err != nil {
		return nil, err
	}
	return s.GetRoleByName(ctx, name, guard)
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID int64) ([]domain.Permission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.guard_name
		FROM role_has_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.id
	`, roleID)
	if err != nil {
		return nil, err
	}
	return scanPermissions(rows)
}

func (s *Store) AttachPermissions(ctx context.Context, roleID int64, guard string, names []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := permissionIDs(ctx, tx, roleID, guard, names)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO role_has_permissions (role_id, permission_id)
			VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, roleID, id)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, guard string, names []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := permissionIDs(ctx, tx, roleID, guard, names)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_has_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_has_permissions (role_id, permission_id)
			VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, roleID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func permissionIDs(ctx context.Context, tx *sql.Tx, roleID int64, guard string, names []string) ([]int64, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(names) == 0 {
		return []int64{}, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name
		FROM permissions
		WHERE guard_name = $1 AND name = ANY($2)
	`, guard, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]int64, len(names))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		byName[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) RoleHasPermission(ctx context.Context, roleName string, guard string, permission string) (bool, error) {
	var granted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM role_has_permissions rp
			JOIN roles r ON r.id = rp.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE r.name = $1 AND r.guard_name = $2 AND p.guard_name = $2 AND p.name = $3
		)
	`, roleName, guard, permission).Scan(&granted)
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func mapWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return store.ErrConflict
	case isForeignKeyViolation(err):
		return fmt.Errorf("referenced row missing: %w", store.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// ABOUTME: Admin user types and store methods for console operators
// ABOUTME: Users sign in with username/password and carry a role that gates writes

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAdminUserNotFound is returned when an admin user doesn't exist.
var ErrAdminUserNotFound = errors.New("admin user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// Role is an admin user's permission level.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && r.IsValid()
}

// AdminUser represents an operator who can use the console.
type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash
	DisplayName  string
	Role         Role
	CreatedAt    time.Time
}

// AdminStore defines the interface for admin user persistence.
type AdminStore interface {
	CreateAdminUser(ctx context.Context, user *AdminUser) error
	GetAdminUser(ctx context.Context, id string) (*AdminUser, error)
	GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error)
	UpdateAdminUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateAdminUserRole(ctx context.Context, id string, role Role) error
	DeleteAdminUser(ctx context.Context, id string) error
	ListAdminUsers(ctx context.Context) ([]*AdminUser, error)
	CountAdminUsers(ctx context.Context) (int, error)
}

const adminUserColumns = `id, username, password_hash, display_name, role, created_at`

// CreateAdminUser creates a new admin user.
func (s *SQLiteStore) CreateAdminUser(ctx context.Context, user *AdminUser) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (`+adminUserColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		string(user.Role),
		formatTime(user.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting admin user: %w", err)
	}

	s.logger.Debug("created admin user", "id", user.ID, "username", user.Username, "role", user.Role)
	return nil
}

// GetAdminUser retrieves an admin user by ID.
func (s *SQLiteStore) GetAdminUser(ctx context.Context, id string) (*AdminUser, error) {
	return s.getAdminUser(ctx, `SELECT `+adminUserColumns+` FROM admin_users WHERE id = ?`, id)
}

// GetAdminUserByUsername retrieves an admin user by username.
func (s *SQLiteStore) GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error) {
	return s.getAdminUser(ctx, `SELECT `+adminUserColumns+` FROM admin_users WHERE username = ?`, username)
}

func (s *SQLiteStore) getAdminUser(ctx context.Context, query, arg string) (*AdminUser, error) {
	user, err := scanAdminUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin user: %w", err)
	}
	return user, nil
}

// UpdateAdminUserPassword updates an admin user's password hash.
func (s *SQLiteStore) UpdateAdminUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateAdminUser(ctx, `UPDATE admin_users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

// UpdateAdminUserRole changes an admin user's role.
func (s *SQLiteStore) UpdateAdminUserRole(ctx context.Context, id string, role Role) error {
	return s.updateAdminUser(ctx, `UPDATE admin_users SET role = ? WHERE id = ?`, string(role), id)
}

// DeleteAdminUser removes an admin user.
func (s *SQLiteStore) DeleteAdminUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admin_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting admin user: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return ErrAdminUserNotFound
	}
	return nil
}

func (s *SQLiteStore) updateAdminUser(ctx context.Context, query, value, id string) error {
	result, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("updating admin user: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return ErrAdminUserNotFound
	}
	return nil
}

// ListAdminUsers returns all admin users, oldest first.
func (s *SQLiteStore) ListAdminUsers(ctx context.Context) ([]*AdminUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adminUserColumns+` FROM admin_users ORDER BY created_at ASC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing admin users: %w", err)
	}
	defer rows.Close()

	users := []*AdminUser{}
	for rows.Next() {
		user, err := scanAdminUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning admin user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin users: %w", err)
	}
	return users, nil
}

// CountAdminUsers returns the total number of admin users.
func (s *SQLiteStore) CountAdminUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admin users: %w", err)
	}
	return count, nil
}

func scanAdminUser(row rowScanner) (*AdminUser, error) {
	var user AdminUser
	var role, createdAt string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &role, &createdAt); err != nil {
		return nil, err
	}
	user.Role = Role(role)

	var err error
	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

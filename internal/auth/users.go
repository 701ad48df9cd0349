// ABOUTME: Admin user management: create, role changes, password changes, removal
// ABOUTME: Keeps at least one owner and writes every change to the audit log

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/store"
)

var (
	// ErrInvalidUser is returned for a malformed username, password or role.
	ErrInvalidUser = errors.New("invalid user")

	// ErrLastOwner is returned when a change would leave no owner.
	ErrLastOwner = errors.New("cannot remove the last owner")

	// ErrAlreadyBootstrapped is returned by Bootstrap once any user exists.
	ErrAlreadyBootstrapped = errors.New("console already has users")
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,62}$`)

// UserAdminStore is the persistence needed by Users.
type UserAdminStore interface {
	store.AdminStore
	store.AuditStore
}

// UserInput describes a new admin user.
type UserInput struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	DisplayName string     `json:"display_name"`
	Role        store.Role `json:"role"`
}

// Users manages admin accounts.
type Users struct {
	store  UserAdminStore
	logger *slog.Logger
}

// NewUsers creates a Users service.
func NewUsers(s UserAdminStore) *Users {
	return &Users{store: s, logger: slog.Default().With("component", "users")}
}

func (in *UserInput) normalize() error {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if !usernamePattern.MatchString(in.Username) {
		return fmt.Errorf("%w: username must be 2-63 lowercase letters, digits, dots, dashes or underscores", ErrInvalidUser)
	}
	if len(in.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, MinPasswordLength)
	}
	if in.Role == "" {
		in.Role = store.RoleEditor
	}
	if !in.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidUser, in.Role)
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}
	return nil
}

// Create adds a user. Only an owner may create another owner.
func (u *Users) Create(ctx context.Context, in UserInput) (*store.AdminUser, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.Role == store.RoleOwner && !FromContext(ctx).Can(store.RoleOwner) {
		return nil, fmt.Errorf("%w: only an owner can create owners", ErrInvalidUser)
	}
	return u.create(ctx, in)
}

func (u *Users) create(ctx context.Context, in UserInput) (*store.AdminUser, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &store.AdminUser{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := u.store.CreateAdminUser(ctx, user); err != nil {
		return nil, err
	}
	u.record(ctx, store.AuditCreateUser, user.ID, map[string]any{"username": user.Username, "role": user.Role})
	return user, nil
}

// Bootstrap creates the first owner of an empty console.
func (u *Users) Bootstrap(ctx context.Context, username, password string) (*store.AdminUser, error) {
	n, err := u.store.CountAdminUsers(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAlreadyBootstrapped
	}
	in := UserInput{Username: username, Password: password, Role: store.RoleOwner}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return u.create(ctx, in)
}

// List returns every user, oldest first.
func (u *Users) List(ctx context.Context) ([]*store.AdminUser, error) {
	return u.store.ListAdminUsers(ctx)
}

// Get returns one user.
func (u *Users) Get(ctx context.Context, id string) (*store.AdminUser, error) {
	return u.store.GetAdminUser(ctx, id)
}

// SetRole changes a user's role.
func (u *Users) SetRole(ctx context.Context, id string, role store.Role) (*store.AdminUser, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, role)
	}
	user, err := u.store.GetAdminUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if (user.Role == store.RoleOwner || role == store.RoleOwner) && !FromContext(ctx).Can(store.RoleOwner) {
		return nil, fmt.Errorf("%w: only an owner can grant or revoke owner", ErrInvalidUser)
	}
	if user.Role == store.RoleOwner && role != store.RoleOwner {
		if err := u.ensureAnotherOwner(ctx, id); err != nil {
			return nil, err
		}
	}
	if err := u.store.UpdateAdminUserRole(ctx, id, role); err != nil {
		return nil, err
	}
	u.record(ctx, store.AuditUpdateUser, id, map[string]any{"role": role, "previous_role": user.Role})
	user.Role = role
	return user, nil
}

// SetPassword replaces a user's password. Users may change their own;
// changing someone else's needs admin.
func (u *Users) SetPassword(ctx context.Context, id, password string) error {
	if actor := FromContext(ctx); actor != nil && actor.UserID != id && !actor.IsAdmin() {
		return fmt.Errorf("%w: admin role required to change another user's password", ErrInvalidUser)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, MinPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := u.store.UpdateAdminUserPassword(ctx, id, hash); err != nil {
		return err
	}
	u.record(ctx, store.AuditUpdateUser, id, map[string]any{"password_changed": true})
	return nil
}

// Delete removes a user, refusing to remove the last owner.
func (u *Users) Delete(ctx context.Context, id string) error {
	user, err := u.store.GetAdminUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == store.RoleOwner {
		if !FromContext(ctx).Can(store.RoleOwner) {
			return fmt.Errorf("%w: only an owner can remove an owner", ErrInvalidUser)
		}
		if err := u.ensureAnotherOwner(ctx, id); err != nil {
			return err
		}
	}
	if err := u.store.DeleteAdminUser(ctx, id); err != nil {
		return err
	}
	u.record(ctx, store.AuditDeleteUser, id, map[string]any{"username": user.Username})
	return nil
}

func (u *Users) ensureAnotherOwner(ctx context.Context, id string) error {
	users, err := u.store.ListAdminUsers(ctx)
	if err != nil {
		return err
	}
	for _, other := range users {
		if other.ID != id && other.Role == store.RoleOwner {
			return nil
		}
	}
	return ErrLastOwner
}

func (u *Users) record(ctx context.Context, action store.AuditAction, id string, detail map[string]any) {
	store.Record(ctx, u.store, u.logger, store.AuditEntry{
		ActorID:    ActorID(ctx),
		Action:     action,
		TargetType: "user",
		TargetID:   id,
		Detail:     detail,
	})
}

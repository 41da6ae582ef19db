package dcaauth

import (
	"context"
	"log/slog"
	"net/http"
)

const usersPath = "/api/users"

// UserManager wraps user administration and emits user.* events.
type UserManager struct {
	manager
}

func newUserManager(exec *Executor, logger *slog.Logger) *UserManager {
	return &UserManager{manager: newManager(exec, "user", "users", logger)}
}

func (m *UserManager) Get(ctx context.Context, id string) (*User, error) {
	path, err := resourcePath(usersPath, id)
	if err != nil {
		return nil, err
	}
	var user User
	if err := m.call(ctx, http.MethodGet, path, RequestOptions{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *UserManager) List(ctx context.Context, params SearchParams) (*Page[User], error) {
	var page Page[User]
	if err := m.list(ctx, usersPath, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (m *UserManager) Update(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	path, err := resourcePath(usersPath, id)
	if err != nil {
		return nil, err
	}
	var user User
	if err := m.send(ctx, http.MethodPatch, path, req, &user); err != nil {
		return nil, err
	}
	m.emit("updated", &user)
	return &user, nil
}

func (m *UserManager) Delete(ctx context.Context, id string) error {
	path, err := resourcePath(usersPath, id)
	if err != nil {
		return err
	}
	if err := m.call(ctx, http.MethodDelete, path, RequestOptions{}, nil); err != nil {
		return err
	}
	m.emit("deleted", id)
	return nil
}

type updateRolesRequest struct {
	Roles []UserRole `json:"roles" validate:"required,min=1,dive,oneof=USER ADMIN MODERATOR DEVELOPER"`
}

// UpdateRoles replaces the user's role set.
func (m *UserManager) UpdateRoles(ctx context.Context, id string, roles ...UserRole) (*User, error) {
	path, err := resourcePath(usersPath, id, "roles")
	if err != nil {
		return nil, err
	}
	var user User
	if err := m.send(ctx, http.MethodPut, path, updateRolesRequest{Roles: roles}, &user); err != nil {
		return nil, err
	}
	m.emit("role_changed", &user)
	return &user, nil
}

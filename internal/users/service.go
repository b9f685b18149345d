// Package users manages accounts and credentials.
package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/store"
)

const minPasswordLength = 6

// CartReleaser gives back the stock held by a user's cart inside an open transaction.
type CartReleaser interface {
	ReleaseCart(ctx context.Context, tx store.Tx, userID int64) (int, error)
}

type Service struct {
	store store.Store
	carts CartReleaser
	log   *zap.Logger
}

func NewService(s store.Store, carts CartReleaser, log *zap.Logger) *Service {
	return &Service{store: s, carts: carts, log: log.Named("users")}
}

type SignUpInput struct {
	Email    string
	Password string
	Role     string
}

// UpdateInput holds optional changes; nil fields are left as they are.
type UpdateInput struct {
	Email    *string
	Password *string
	Role     *string
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.InvalidArgument("email must be a valid address")
	}
	return email, nil
}

func hashPassword(plaintext string) (string, error) {
	if len(plaintext) < minPasswordLength {
		return "", apperr.InvalidArgument("password must be at least %d characters", minPasswordLength)
	}
	var pw models.Password
	if err := pw.Set(plaintext); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "hash password")
	}
	return pw.Hash, nil
}

func validateRole(role string) (string, error) {
	if role == "" {
		return models.RoleUser, nil
	}
	role = strings.ToUpper(role)
	if !models.ValidRole(role) {
		return "", apperr.InvalidArgument("role must be %s or %s", models.RoleUser, models.RoleAdmin)
	}
	return role, nil
}

func duplicateEmail(err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return apperr.New(apperr.KindAlreadyExists, "email already exists")
	}
	return err
}

// SignUp creates an account. The role defaults to USER.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	// 1. --- Validate input ---
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role, err := validateRole(in.Role)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	// 2. --- Insert ---
	u := &models.User{Email: email, PasswordHash: hash, Role: role}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		return tx.InsertUser(ctx, u)
	})
	if err != nil {
		return nil, duplicateEmail(err)
	}

	s.log.Info("user signed up", zap.Int64("user_id", u.ID), zap.String("role", u.Role))
	return u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := apperr.New(apperr.KindUnauthorized, "invalid credentials")

	var u *models.User
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	pw := models.Password{Hash: u.PasswordHash}
	match, err := pw.Matches(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "compare password")
	}
	if !match {
		return nil, invalid
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListUsers(ctx)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, actor models.Principal, id int64) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, apperr.Forbidden("you can only access your own profile")
	}
	var u *models.User
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, err = getUser(ctx, tx, id)
		return err
	})
	return u, err
}

// Update changes email, password or role. Only admins may change a role.
func (s *Service) Update(ctx context.Context, actor models.Principal, id int64, in UpdateInput) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, apperr.Forbidden("you can only update your own profile")
	}
	if in.Role != nil && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can change roles")
	}

	// 1. --- Validate the changes before touching the store ---
	var email, hash, role string
	var err error
	if in.Email != nil {
		if email, err = normalizeEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if hash, err = hashPassword(*in.Password); err != nil {
			return nil, err
		}
	}
	if in.Role != nil {
		if role, err = validateRole(*in.Role); err != nil {
			return nil, err
		}
	}

	// 2. --- Apply ---
	var u *models.User
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		u, err = getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if email != "" {
			u.Email = email
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		if role != "" {
			u.Role = role
		}
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, duplicateEmail(err)
	}
	return u, nil
}

// Delete removes the account. Stock held by the user's cart is released in the same transaction.
func (s *Service) Delete(ctx context.Context, actor models.Principal, id int64) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, apperr.Forbidden("you can only delete your own profile")
	}

	var u *models.User
	var released int
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		u, err = getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if released, err = s.carts.ReleaseCart(ctx, tx, id); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user deleted", zap.Int64("user_id", id), zap.Int64("by", actor.UserID), zap.Int("units_released", released))
	return u, nil
}

func getUser(ctx context.Context, tx store.UserTx, id int64) (*models.User, error) {
	u, err := tx.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

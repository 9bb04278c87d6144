package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 64
)

// UserService encapsulates account use-cases.
type UserService struct {
	store  Store
	logger *slog.Logger
}

func NewUserService(store Store, logger *slog.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

// SignUp creates an account. The password is stored only as a salted
// argon2id hash.
func (s *UserService) SignUp(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)

	var errs fieldErrors
	switch {
	case username == "":
		errs.add("username", "must not be blank")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		errs.add("username", "must be at most 64 characters")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs.add("password", "must be at least 8 characters")
	}
	if err := errs.err(); err != nil {
		logFailure(s.logger, "sign up", err, "username", username)
		return types.User{}, err
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		logFailure(s.logger, "sign up", err, "username", username)
		return types.User{}, err
	}

	user, err := s.store.Repos().Users.Create(ctx, types.User{
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = &UniquenessError{Field: "username", Value: username}
		}
		logFailure(s.logger, "sign up", err, "username", username)
		return types.User{}, err
	}

	s.logger.Info("user signed up", "user_id", user.ID)
	return user, nil
}

// Authenticate returns the user whose credentials match, or
// ErrInvalidCredentials without saying which half was wrong.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.store.Repos().Users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrInvalidCredentials
		}
		logFailure(s.logger, "authenticate", err, "username", username)
		return types.User{}, err
	}
	if !verifyPassword(password, user.PasswordHash, user.Salt) {
		logFailure(s.logger, "authenticate", ErrInvalidCredentials, "username", username)
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = &NotFoundError{Entity: "user", IDs: []int{id}}
		}
		logFailure(s.logger, "get user", err, "user_id", id)
		return types.User{}, err
	}
	return user, nil
}

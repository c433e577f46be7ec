// Account storage: handles, display names, password credentials, and staff flags.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tweetor-social/tweetor/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrHandleNotFound     = fmt.Errorf("%w: no account with that handle", models.ErrNotFound)
	ErrBadCredentials     = fmt.Errorf("%w: handle or password incorrect", models.ErrUnauthorized)
	ErrPasswordMismatch   = fmt.Errorf("%w: passwords do not match", models.ErrValidation)
	ErrInvalidDisplayName = fmt.Errorf("%w: display name must be non-blank and cannot contain '|'", models.ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: password must be between 1 and 72 bytes", models.ErrValidation)
	ErrHandleAllocation   = errors.New("could not allocate a unique handle")
)

const maxHandleAllocAttempts = 5

type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	// bcrypt work factor; tests lower this
	BcryptCost int
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:         db,
		logger:     logger.With("component", "identity"),
		BcryptCost: bcrypt.DefaultCost,
	}
}

type SignupInput struct {
	DisplayName          string
	Password             string
	PasswordConfirmation string
}

// Creates an account. The handle is the display name, with the number of
// existing accounts sharing that display name appended when it collides
// ("Alice", then "Alice1", "Alice2", ...).
func (s *Store) CreateUser(ctx context.Context, in SignupInput) (*models.User, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" || strings.Contains(name, "|") {
		return nil, ErrInvalidDisplayName
	}
	if in.Password != in.PasswordConfirmation {
		return nil, ErrPasswordMismatch
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	// concurrent signups may race for the same candidate handle; the unique
	// index decides, and the loser recomputes
	for attempt := 0; attempt < maxHandleAllocAttempts; attempt++ {
		user := models.User{
			DisplayName:  name,
			PasswordHash: hash,
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			handle, err := allocateHandle(tx, name)
			if err != nil {
				return err
			}
			user.Handle = handle
			return tx.Create(&user).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Info("handle collision during signup, retrying", "displayName", name, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		s.logger.Info("created account", "handle", user.Handle)
		return &user, nil
	}
	return nil, ErrHandleAllocation
}

func allocateHandle(tx *gorm.DB, name string) (string, error) {
	var n int64
	if err := tx.Model(&models.User{}).Where("display_name = ?", name).Count(&n).Error; err != nil {
		return "", err
	}
	for {
		handle := name
		if n > 0 {
			handle = name + strconv.FormatInt(n, 10)
		}
		var taken int64
		if err := tx.Model(&models.User{}).Where("handle = ?", handle).Count(&taken).Error; err != nil {
			return "", err
		}
		if taken == 0 {
			return handle, nil
		}
		n++
	}
}

func (s *Store) hashPassword(pw string) ([]byte, error) {
	if pw == "" || len(pw) > 72 {
		return nil, ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

func (s *Store) LookupHandle(ctx context.Context, handle string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("handle = ?", handle).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHandleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up handle: %w", err)
	}
	return &user, nil
}

func (s *Store) Exists(ctx context.Context, handle string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("handle = ?", handle).Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking handle: %w", err)
	}
	return n > 0, nil
}

// Checks a password. Unknown handles and wrong passwords return the same error.
func (s *Store) Authenticate(ctx context.Context, handle, password string) (*models.User, error) {
	user, err := s.LookupHandle(ctx, handle)
	if errors.Is(err, ErrHandleNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

func (s *Store) ChangePassword(ctx context.Context, actor models.Actor, current, next string) error {
	if err := actor.RequireAuthenticated(); err != nil {
		return err
	}
	if _, err := s.Authenticate(ctx, actor.Handle, current); err != nil {
		return err
	}
	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("handle = ?", actor.Handle).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("updating password: %w", res.Error)
	}
	return nil
}

// Staff-only. Posts, messages, and follows keyed by the handle are left in place.
func (s *Store) DeleteUser(ctx context.Context, actor models.Actor, handle string) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("handle = ?", handle).Delete(&models.User{})
	if res.Error != nil {
		return fmt.Errorf("deleting user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrHandleNotFound
	}
	s.logger.Info("deleted account", "handle", handle, "by", actor.Handle)
	return nil
}

// Marks the given handles as staff. Handles without accounts are ignored.
func (s *Store) EnsureStaff(ctx context.Context, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("handle IN ?", handles).Update("is_staff", true)
	if res.Error != nil {
		return fmt.Errorf("marking staff accounts: %w", res.Error)
	}
	return nil
}

// Builds the per-call identity for a logged-in handle.
func (s *Store) ActorFor(ctx context.Context, handle string) (models.Actor, error) {
	user, err := s.LookupHandle(ctx, handle)
	if err != nil {
		return models.Anonymous(), err
	}
	return models.Actor{
		Handle:        user.Handle,
		Authenticated: true,
		Staff:         user.IsStaff,
	}, nil
}

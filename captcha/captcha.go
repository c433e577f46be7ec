// Single-use human-verification tokens gating account creation.
//
// Tokens are persisted, so replay protection survives restarts. A token is
// burned the first time it is presented, whether or not the answer matched.
// Tokens older than the TTL are pruned; since never-issued tokens are
// rejected, a pruned token can not be replayed either.
package captcha

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/tweetor-social/tweetor/internal/ticker"
	"github.com/tweetor-social/tweetor/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	ErrCaptchaUsed    = fmt.Errorf("%w: captcha has already been used", models.ErrValidation)
	ErrCaptchaUnknown = fmt.Errorf("%w: captcha was never issued", models.ErrValidation)
	ErrCaptchaExpired = fmt.Errorf("%w: captcha has expired", models.ErrValidation)
	ErrIssueExhausted = errors.New("could not generate an unused captcha")
)

type Config struct {
	Length int
	TTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Length: 5,
		TTL:    30 * time.Minute,
	}
}

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	config Config

	// overridable clock, for tests
	Now func() time.Time
}

func NewStore(db *gorm.DB, config Config, logger *slog.Logger) *Store {
	def := DefaultConfig()
	if config.Length <= 0 {
		config.Length = def.Length
	}
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "captcha"),
		config: config,
		Now:    time.Now,
	}
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	size := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// Generates and persists a fresh token, distinct from every token currently
// on record (used or not).
func (s *Store) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		val, err := randomToken(s.config.Length)
		if err != nil {
			return "", fmt.Errorf("generating captcha: %w", err)
		}
		err = s.db.WithContext(ctx).Create(&models.CaptchaToken{
			Value:     val,
			CreatedAt: s.Now(),
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("persisting captcha: %w", err)
		}
		return val, nil
	}
	return "", ErrIssueExhausted
}

// Burns the expected token and reports whether the candidate answer matched.
//
// A token that was already used, never issued, or expired returns an error
// even when the candidate matches.
func (s *Store) Redeem(ctx context.Context, candidate, expected string) (bool, error) {
	if expected == "" {
		return false, ErrCaptchaUnknown
	}
	now := s.Now()

	var outcome error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tok models.CaptchaToken
		err := tx.Where("value = ?", expected).Take(&tok).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// record the value as used so it can never be issued later
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.CaptchaToken{Value: expected, Used: true, CreatedAt: now, UsedAt: &now}).Error
			if err != nil {
				return err
			}
			outcome = ErrCaptchaUnknown
			return nil
		}
		if err != nil {
			return err
		}
		if tok.Used {
			outcome = ErrCaptchaUsed
			return nil
		}

		res := tx.Model(&models.CaptchaToken{}).
			Where("value = ? AND used = ?", expected, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = ErrCaptchaUsed
			return nil
		}
		if now.Sub(tok.CreatedAt) > s.config.TTL {
			outcome = ErrCaptchaExpired
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redeeming captcha: %w", err)
	}
	if outcome != nil {
		s.logger.Info("captcha redemption refused", "reason", outcome)
		return false, outcome
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1, nil
}

// Deletes tokens created more than olderThan ago. Returns the number removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.CaptchaToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning captchas: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("pruned captchas", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Prunes expired tokens every interval until ctx is done.
func (s *Store) RunPruner(ctx context.Context, interval time.Duration) {
	ticker.Periodically(ctx, s.logger, interval, func(ctx context.Context) error {
		_, err := s.Prune(ctx, s.config.TTL)
		return err
	})
}

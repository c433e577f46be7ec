// Follow relationships between users, and the staff-managed mute list.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tweetor-social/tweetor/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSelfFollow   = fmt.Errorf("%w: cannot follow yourself", models.ErrValidation)
	ErrUserNotFound = fmt.Errorf("%w: no account with that handle", models.ErrNotFound)
)

type Graph struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGraph(db *gorm.DB, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		db:     db,
		logger: logger.With("component", "graph"),
	}
}

func userExists(tx *gorm.DB, handle string) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
		return fmt.Errorf("checking user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Records that the actor follows target. Following twice is a no-op.
func (g *Graph) Follow(ctx context.Context, actor models.Actor, target string) error {
	if err := actor.RequireAuthenticated(); err != nil {
		return err
	}
	if actor.Handle == target {
		return ErrSelfFollow
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, target); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Follow{
			FollowerHandle:  actor.Handle,
			FollowingHandle: target,
		}).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("creating follow: %w", err)
		}
		return nil
	})
}

func (g *Graph) Unfollow(ctx context.Context, actor models.Actor, target string) error {
	if err := actor.RequireAuthenticated(); err != nil {
		return err
	}
	err := g.db.WithContext(ctx).
		Where("follower_handle = ? AND following_handle = ?", actor.Handle, target).
		Delete(&models.Follow{}).Error
	if err != nil {
		return fmt.Errorf("deleting follow: %w", err)
	}
	return nil
}

func (g *Graph) IsFollowing(ctx context.Context, follower, following string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_handle = ? AND following_handle = ?", follower, following).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking follow: %w", err)
	}
	return count > 0, nil
}

// Handles following the given handle, sorted.
func (g *Graph) ListFollowers(ctx context.Context, handle string) ([]string, error) {
	var out []string
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_handle = ?", handle).
		Order("follower_handle").
		Pluck("follower_handle", &out).Error
	if err != nil {
		return nil, fmt.Errorf("listing followers: %w", err)
	}
	return out, nil
}

// Handles the given handle follows, sorted.
func (g *Graph) ListFollowing(ctx context.Context, handle string) ([]string, error) {
	var out []string
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_handle = ?", handle).
		Order("following_handle").
		Pluck("following_handle", &out).Error
	if err != nil {
		return nil, fmt.Errorf("listing following: %w", err)
	}
	return out, nil
}

// Bars handle from posting. Staff only; muting a muted handle is a no-op.
func (g *Graph) Mute(ctx context.Context, actor models.Actor, handle string) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, handle); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Mute{
			Handle:  handle,
			MutedBy: actor.Handle,
		}).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("creating mute: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.logger.Info("muted user", "handle", handle, "staff", actor.Handle)
	return nil
}

func (g *Graph) Unmute(ctx context.Context, actor models.Actor, handle string) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Where("handle = ?", handle).Delete(&models.Mute{})
	if res.Error != nil {
		return fmt.Errorf("deleting mute: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		g.logger.Info("unmuted user", "handle", handle, "staff", actor.Handle)
	}
	return nil
}

func (g *Graph) IsMuted(ctx context.Context, handle string) (bool, error) {
	return IsMutedTx(g.db.WithContext(ctx), handle)
}

// Mute check against an open transaction, so callers can re-check right
// before they write.
func IsMutedTx(tx *gorm.DB, handle string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Mute{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking mute: %w", err)
	}
	return count > 0, nil
}

func (g *Graph) ListMuted(ctx context.Context, actor models.Actor) ([]models.Mute, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	var out []models.Mute
	if err := g.db.WithContext(ctx).Order("handle").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing mutes: %w", err)
	}
	return out, nil
}

package feed

import (
	"context"
	"fmt"

	"github.com/tweetor-social/tweetor/models"
	"github.com/tweetor-social/tweetor/moderation"

	"gorm.io/gorm"
)

var ErrInvalidVisibility = fmt.Errorf("%w: unknown visibility", models.ErrValidation)

// Removes a post and every report filed against it. Reposts of it are left
// in place and resolve as "original unavailable".
func (s *Store) DeletePost(ctx context.Context, actor models.Actor, id uint64) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return fmt.Errorf("deleting post: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Report{}).Error; err != nil {
			return fmt.Errorf("deleting reports: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("deleted post", "id", id, "staff", actor.Handle)
	return nil
}

// Staff override of a post's visibility. The moderator's remembered verdict
// for the post's text is dropped, since staff have overruled it.
func (s *Store) SetVisibility(ctx context.Context, actor models.Actor, id uint64, vis models.Visibility) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	if !vis.Valid() {
		return ErrInvalidVisibility
	}
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Update("visibility", vis)
	if res.Error != nil {
		return fmt.Errorf("updating visibility: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	if f, ok := s.moderator.(moderation.Forgetter); ok && post.Kind == models.PostKindOriginal {
		if err := f.Forget(ctx, post.Content); err != nil {
			s.logger.Warn("failed to forget cached verdict", "id", id, "err", err)
		}
	}
	s.logger.Info("set post visibility", "id", id, "visibility", vis, "staff", actor.Handle)
	return nil
}

// Staff audit view of hidden posts, newest first.
func (s *Store) ListHidden(ctx context.Context, actor models.Actor) ([]models.Post, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	var out []models.Post
	err := s.db.WithContext(ctx).
		Where("visibility = ?", models.VisibilityHidden).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing hidden posts: %w", err)
	}
	return out, nil
}

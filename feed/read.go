package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/tweetor-social/tweetor/models"

	"gorm.io/gorm"
)

func (s *Store) listQuery(ctx context.Context, staff bool, page Page) *gorm.DB {
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}
	q := s.db.WithContext(ctx).Model(&models.Post{})
	if !staff {
		q = q.Where("visibility = ?", models.VisibilityVisible)
	}
	return q.Order("created_at DESC").Order("id DESC").Offset(page.Skip).Limit(page.Limit)
}

// Newest first. Hidden posts are only included for staff.
func (s *Store) ListFeed(ctx context.Context, staff bool, page Page) ([]models.Post, error) {
	var out []models.Post
	if err := s.listQuery(ctx, staff, page).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing feed: %w", err)
	}
	return out, nil
}

func (s *Store) ListByAuthor(ctx context.Context, handle string, staff bool, page Page) ([]models.Post, error) {
	var out []models.Post
	if err := s.listQuery(ctx, staff, page).Where("author_handle = ?", handle).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing posts by author: %w", err)
	}
	return out, nil
}

func (s *Store) ListByHashtag(ctx context.Context, tag string, staff bool, page Page) ([]models.Post, error) {
	var out []models.Post
	if err := s.listQuery(ctx, staff, page).Where("hashtag = ?", tag).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing posts by hashtag: %w", err)
	}
	return out, nil
}

// Fetches a post regardless of visibility.
func (s *Store) GetByID(ctx context.Context, id uint64) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching post: %w", err)
	}
	return &post, nil
}

// Like GetByID, but hidden posts are reported as absent to non-staff viewers.
func (s *Store) GetForViewer(ctx context.Context, id uint64, staff bool) (*models.Post, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staff && post.Visibility != models.VisibilityVisible {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Returns the post a repost refers to. The bool is false when post is not a
// repost or its original has since been deleted; neither case is an error.
func (s *Store) ResolveOriginal(ctx context.Context, post *models.Post) (*models.Post, bool, error) {
	if post == nil || !post.IsRepost() {
		return nil, false, nil
	}
	orig, err := s.GetByID(ctx, *post.OriginalID)
	if errors.Is(err, ErrPostNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return orig, true, nil
}

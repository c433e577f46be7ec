package feed

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tweetor-social/tweetor/models"

	"gorm.io/gorm"
)

const week = 7 * 24 * time.Hour

type Profile struct {
	Handle      string     `json:"handle"`
	PostCount   int64      `json:"post_count"`
	FirstPostAt *time.Time `json:"first_post_at,omitempty"`
	// posts per week since the first post, times 1000
	Activeness int64 `json:"activeness"`
}

// Posting statistics for handle, counting posts of any visibility.
func (s *Store) AuthorProfile(ctx context.Context, handle string) (*Profile, error) {
	q := s.db.WithContext(ctx).Model(&models.Post{}).Where("author_handle = ?", handle)

	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("counting posts: %w", err)
	}
	prof := &Profile{
		Handle:    handle,
		PostCount: count,
	}
	if count > 0 {
		var first models.Post
		if err := q.Session(&gorm.Session{}).Order("created_at ASC").Take(&first).Error; err != nil {
			return nil, fmt.Errorf("finding first post: %w", err)
		}
		prof.FirstPostAt = &first.CreatedAt
		prof.Activeness = activeness(count, s.now().Sub(first.CreatedAt))
	}
	return prof, nil
}

func activeness(count int64, since time.Duration) int64 {
	weeks := since.Hours() / week.Hours()
	if weeks <= 0 {
		return 0
	}
	return int64(math.Round(float64(count) / weeks * 1000))
}

// User reports against posts, reviewed by staff.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tweetor-social/tweetor/models"

	"gorm.io/gorm"
)

var (
	ErrReasonRequired = fmt.Errorf("%w: a report needs a reason", models.ErrValidation)
	ErrPostNotFound   = fmt.Errorf("%w: no post with that id", models.ErrNotFound)
)

type Queue struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewQueue(db *gorm.DB, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		db:     db,
		logger: logger.With("component", "reports"),
	}
}

// Files a report. Repeat reports from the same reporter are kept as separate
// rows.
func (q *Queue) Report(ctx context.Context, actor models.Actor, postID uint64, reason string) (uint64, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return 0, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, ErrReasonRequired
	}

	rep := models.Report{
		PostID:         postID,
		ReporterHandle: actor.Handle,
		Reason:         reason,
	}
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
			return fmt.Errorf("looking up post: %w", err)
		}
		if count == 0 {
			return ErrPostNotFound
		}
		if err := tx.Create(&rep).Error; err != nil {
			return fmt.Errorf("storing report: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	reportCount.Inc()
	q.logger.Info("post reported", "post", postID, "reporter", actor.Handle)
	return rep.ID, nil
}

// All reports, oldest first. Staff only.
func (q *Queue) List(ctx context.Context, actor models.Actor) ([]models.Report, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	var out []models.Report
	if err := q.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return out, nil
}

func (q *Queue) ListForPost(ctx context.Context, actor models.Actor, postID uint64) ([]models.Report, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	var out []models.Report
	if err := q.db.WithContext(ctx).Where("post_id = ?", postID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return out, nil
}

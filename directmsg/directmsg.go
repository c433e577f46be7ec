// Private messages between two users. Messages the classifier flags are kept,
// but hidden from both participants and listed for staff review.
package directmsg

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/tweetor-social/tweetor/models"
	"github.com/tweetor-social/tweetor/moderation"

	"gorm.io/gorm"
)

type Config struct {
	// in code points
	MaxLength   int
	MatchPolicy moderation.MatchPolicy
}

func DefaultConfig() Config {
	return Config{
		MaxLength:   1000,
		MatchPolicy: moderation.HideOnMatch,
	}
}

type Store struct {
	db        *gorm.DB
	moderator moderation.Moderator
	config    Config
	logger    *slog.Logger
}

func NewStore(db *gorm.DB, moderator moderation.Moderator, config Config, logger *slog.Logger) *Store {
	def := DefaultConfig()
	if config.MaxLength <= 0 {
		config.MaxLength = def.MaxLength
	}
	if config.MatchPolicy == "" {
		config.MatchPolicy = def.MatchPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		moderator: moderator,
		config:    config,
		logger:    logger.With("component", "directmsg"),
	}
}

// Stores a message from actor to receiver and returns its id. Under
// HideOnMatch a flagged message is still stored (hidden) and its id returned.
func (s *Store) Submit(ctx context.Context, actor models.Actor, receiver, content string) (uint64, error) {
	if err := actor.RequireAuthenticated(); err != nil {
		return 0, models.Submission(models.KindUnauthenticated)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("handle = ?", receiver).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("looking up receiver: %w", err)
	}
	if count == 0 {
		return 0, models.Submission(models.KindNotFound)
	}
	if utf8.RuneCountInString(content) > s.config.MaxLength {
		return 0, models.Submission(models.KindTooLong)
	}

	verdict := s.moderator.Moderate(ctx, content)
	outcome := s.config.MatchPolicy.Outcome(verdict)
	if outcome == moderation.OutcomeBlock {
		messageCount.WithLabelValues("blocked").Inc()
		return 0, &models.SubmissionError{Kind: models.KindRejected, Categories: verdict.Categories}
	}

	msg := models.DirectMessage{
		SenderHandle:   actor.Handle,
		ReceiverHandle: receiver,
		Content:        content,
		Visibility:     outcome.Visibility(),
	}
	if outcome == moderation.OutcomeStoreHidden {
		msg.MatchedCategories = verdict.Categories
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return 0, fmt.Errorf("storing message: %w", err)
	}
	messageCount.WithLabelValues(string(msg.Visibility)).Inc()
	if msg.Visibility == models.VisibilityHidden {
		s.logger.Info("hid flagged direct message", "id", msg.ID, "sender", msg.SenderHandle, "categories", msg.MatchedCategories)
	}
	return msg.ID, nil
}

// Visible messages exchanged between a and b in either direction, newest first.
func (s *Store) ListConversation(ctx context.Context, a, b string) ([]models.DirectMessage, error) {
	var out []models.DirectMessage
	err := s.db.WithContext(ctx).
		Where("(sender_handle = ? AND receiver_handle = ?) OR (sender_handle = ? AND receiver_handle = ?)", a, b, b, a).
		Where("visibility = ?", models.VisibilityVisible).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversation: %w", err)
	}
	return out, nil
}

// Sorted distinct handles that have exchanged at least one message with
// handle, in either direction.
func (s *Store) ListEngagedPeers(ctx context.Context, handle string) ([]string, error) {
	var sent, received []string
	db := s.db.WithContext(ctx).Model(&models.DirectMessage{})
	if err := db.Where("sender_handle = ?", handle).Distinct().Pluck("receiver_handle", &sent).Error; err != nil {
		return nil, fmt.Errorf("listing peers: %w", err)
	}
	db = s.db.WithContext(ctx).Model(&models.DirectMessage{})
	if err := db.Where("receiver_handle = ?", handle).Distinct().Pluck("sender_handle", &received).Error; err != nil {
		return nil, fmt.Errorf("listing peers: %w", err)
	}

	seen := make(map[string]bool, len(sent)+len(received))
	peers := []string{}
	for _, h := range append(sent, received...) {
		if seen[h] {
			continue
		}
		seen[h] = true
		peers = append(peers, h)
	}
	sort.Strings(peers)
	return peers, nil
}

// Staff audit listing of hidden messages, newest first.
func (s *Store) ListHidden(ctx context.Context, actor models.Actor) ([]models.DirectMessage, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	var out []models.DirectMessage
	err := s.db.WithContext(ctx).
		Where("visibility = ?", models.VisibilityHidden).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing hidden messages: %w", err)
	}
	return out, nil
}

// Public posts ("flits"): submission with validation and moderation,
// reposts, feed reads, and staff controls.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tweetor-social/tweetor/graph"
	"github.com/tweetor-social/tweetor/models"
	"github.com/tweetor-social/tweetor/moderation"

	"gorm.io/gorm"
)

var ErrPostNotFound = fmt.Errorf("%w: no post with that id", models.ErrNotFound)

type Config struct {
	// media links must be empty or start with one of these after normalization
	AllowedMediaPrefixes []string
	// in code points
	MaxLength int
	// store an empty original post when a repost references a missing post,
	// rather than failing with NotFound
	StoreOrphanReposts bool
	MatchPolicy        moderation.MatchPolicy
}

func DefaultConfig() Config {
	return Config{
		AllowedMediaPrefixes: []string{"https://media.tenor.com/"},
		MaxLength:            280,
		MatchPolicy:          moderation.BlockOnMatch,
	}
}

type Store struct {
	db        *gorm.DB
	moderator moderation.Moderator
	config    Config
	logger    *slog.Logger

	now func() time.Time
}

func NewStore(db *gorm.DB, moderator moderation.Moderator, config Config, logger *slog.Logger) *Store {
	def := DefaultConfig()
	if config.MaxLength <= 0 {
		config.MaxLength = def.MaxLength
	}
	if config.AllowedMediaPrefixes == nil {
		config.AllowedMediaPrefixes = def.AllowedMediaPrefixes
	}
	if config.MatchPolicy == "" {
		config.MatchPolicy = def.MatchPolicy
	}
	prefixes := make([]string, 0, len(config.AllowedMediaPrefixes))
	for _, p := range config.AllowedMediaPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, normalizeMediaLink(p))
		}
	}
	config.AllowedMediaPrefixes = prefixes
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		moderator: moderator,
		config:    config,
		logger:    logger.With("component", "feed"),
		now:       time.Now,
	}
}

type OriginalInput struct {
	Content   string
	MediaLink string
	Hashtag   string
}

// Validates, moderates, and stores an original post. Returns the new post id.
//
// Checks run in a fixed order and only the first failure is reported.
func (s *Store) SubmitOriginal(ctx context.Context, actor models.Actor, in OriginalInput) (uint64, error) {
	if err := s.precheck(ctx, actor); err != nil {
		return 0, s.refuse(models.PostKindOriginal, err)
	}
	if strings.TrimSpace(in.Content) == "" {
		return 0, s.refuse(models.PostKindOriginal, models.Submission(models.KindBlankContent))
	}
	if utf8.RuneCountInString(in.Content) > s.config.MaxLength {
		return 0, s.refuse(models.PostKindOriginal, models.Submission(models.KindTooLong))
	}
	mediaLink := strings.TrimSpace(in.MediaLink)
	if mediaLink != "" && !s.allowedMedia(mediaLink) {
		return 0, s.refuse(models.PostKindOriginal, models.Submission(models.KindBadMediaHost))
	}

	// classifier call happens outside any transaction
	verdict := s.moderator.Moderate(ctx, in.Content)
	outcome := s.config.MatchPolicy.Outcome(verdict)
	if outcome == moderation.OutcomeBlock {
		return 0, s.refuse(models.PostKindOriginal, &models.SubmissionError{Kind: models.KindRejected, Categories: verdict.Categories})
	}

	post := models.Post{
		AuthorHandle: actor.Handle,
		Content:      in.Content,
		MediaLink:    mediaLink,
		Hashtag:      strings.TrimSpace(in.Hashtag),
		Visibility:   outcome.Visibility(),
		Kind:         models.PostKindOriginal,
	}
	if err := s.insert(ctx, &post); err != nil {
		return 0, err
	}
	submissionCount.WithLabelValues(string(models.PostKindOriginal), "stored").Inc()
	s.logger.Info("stored post", "id", post.ID, "author", post.AuthorHandle, "visibility", post.Visibility, "degraded", verdict.Degraded)
	return post.ID, nil
}

// Stores a repost of originalID. Reposts carry no author text and skip
// moderation.
func (s *Store) SubmitRepost(ctx context.Context, actor models.Actor, originalID uint64) (uint64, error) {
	if err := s.precheck(ctx, actor); err != nil {
		return 0, s.refuse(models.PostKindRepost, err)
	}

	var post models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkMuteTx(tx, actor.Handle); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", originalID).Count(&count).Error; err != nil {
			return fmt.Errorf("looking up original post: %w", err)
		}
		switch {
		case count > 0:
			post = models.Post{
				AuthorHandle: actor.Handle,
				Content:      "Repost: " + strconv.FormatUint(originalID, 10),
				Visibility:   models.VisibilityVisible,
				Kind:         models.PostKindRepost,
				OriginalID:   &originalID,
			}
		case s.config.StoreOrphanReposts:
			post = models.Post{
				AuthorHandle: actor.Handle,
				Visibility:   models.VisibilityVisible,
				Kind:         models.PostKindOriginal,
			}
		default:
			return models.Submission(models.KindNotFound)
		}
		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("storing repost: %w", err)
		}
		return nil
	})
	if err != nil {
		var se *models.SubmissionError
		if errors.As(err, &se) {
			return 0, s.refuse(models.PostKindRepost, se)
		}
		return 0, err
	}
	submissionCount.WithLabelValues(string(post.Kind), "stored").Inc()
	s.logger.Info("stored repost", "id", post.ID, "author", post.AuthorHandle, "original", originalID)
	return post.ID, nil
}

func (s *Store) precheck(ctx context.Context, actor models.Actor) error {
	if err := actor.RequireAuthenticated(); err != nil {
		return models.Submission(models.KindUnauthenticated)
	}
	muted, err := graph.IsMutedTx(s.db.WithContext(ctx), actor.Handle)
	if err != nil {
		return err
	}
	if muted {
		return models.Submission(models.KindMuted)
	}
	return nil
}

func checkMuteTx(tx *gorm.DB, handle string) error {
	muted, err := graph.IsMutedTx(tx, handle)
	if err != nil {
		return err
	}
	if muted {
		return models.Submission(models.KindMuted)
	}
	return nil
}

// mute is re-checked in the write transaction, so a mute that lands while the
// classifier is running still wins
func (s *Store) insert(ctx context.Context, post *models.Post) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkMuteTx(tx, post.AuthorHandle); err != nil {
			return err
		}
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("storing post: %w", err)
		}
		return nil
	})
	var se *models.SubmissionError
	if errors.As(err, &se) {
		return s.refuse(post.Kind, se)
	}
	return err
}

func (s *Store) refuse(postKind models.PostKind, err error) error {
	if kind := models.KindOf(err); kind != "" {
		submissionCount.WithLabelValues(string(postKind), string(kind)).Inc()
		s.logger.Debug("post refused", "kind", kind, "post_kind", postKind)
	}
	return err
}

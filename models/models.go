package models

import (
	"time"

	"gorm.io/gorm"
)

type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

func (v Visibility) Valid() bool {
	return v == VisibilityVisible || v == VisibilityHidden
}

type PostKind string

const (
	PostKindOriginal PostKind = "original"
	PostKindRepost   PostKind = "repost"
)

type User struct {
	ID           uint64 `gorm:"primaryKey"`
	Handle       string `gorm:"uniqueIndex;not null"`
	DisplayName  string `gorm:"index;not null"`
	PasswordHash []byte `gorm:"not null" json:"-"`
	IsStaff      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

// A post ("flit") is either original author text or a repost of another post.
//
// OriginalID is a plain nullable column, not a foreign key: the referenced
// post may be deleted later, and readers treat that as "original unavailable".
type Post struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	AuthorHandle string     `gorm:"index;not null"`
	Content      string     `gorm:"type:text;not null"`
	MediaLink    string     `gorm:"not null;default:''"`
	Hashtag      string     `gorm:"index;not null;default:''"`
	Visibility   Visibility `gorm:"index;not null"`
	Kind         PostKind   `gorm:"not null"`
	OriginalID   *uint64    `gorm:"index"`
	CreatedAt    time.Time  `gorm:"index"`
}

func (p *Post) IsRepost() bool {
	return p.Kind == PostKindRepost && p.OriginalID != nil
}

type DirectMessage struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement"`
	SenderHandle      string     `gorm:"index;not null"`
	ReceiverHandle    string     `gorm:"index;not null"`
	Content           string     `gorm:"type:text;not null"`
	Visibility        Visibility `gorm:"index;not null"`
	MatchedCategories []string   `gorm:"serializer:json"`
	CreatedAt         time.Time  `gorm:"index"`
}

type Follow struct {
	FollowerHandle  string `gorm:"primaryKey"`
	FollowingHandle string `gorm:"primaryKey;index"`
	CreatedAt       time.Time
}

type Mute struct {
	Handle    string `gorm:"primaryKey"`
	MutedBy   string `gorm:"not null"`
	CreatedAt time.Time
}

type CaptchaToken struct {
	Value     string    `gorm:"primaryKey"`
	Used      bool      `gorm:"index;not null;default:false"`
	CreatedAt time.Time `gorm:"index"`
	UsedAt    *time.Time
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Post{},
		&DirectMessage{},
		&Follow{},
		&Mute{},
		&Report{},
		&CaptchaToken{},
	)
}

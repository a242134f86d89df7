package models

import (
	"time"
)

type User struct {
	ID            string    `gorm:"primaryKey;size:36"              json:"id"`
	Name          string    `gorm:"size:120"                        json:"name"`
	Email         string    `gorm:"uniqueIndex;size:254;not null"   json:"email"`
	EmailVerified bool      `gorm:"not null;default:false"          json:"email_verified"`
	AvatarURL     string    `gorm:"size:500"                        json:"avatar_url,omitempty"`
	PasswordHash  string    `gorm:"not null"                        json:"-"`
	Role          string    `gorm:"size:16;not null;default:'user'" json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Session struct {
	ID        string    `gorm:"primaryKey;size:36"            json:"id"`
	Token     string    `gorm:"uniqueIndex;size:128;not null" json:"-"`
	UserID    string    `gorm:"index;size:36;not null"        json:"user_id"`
	IP        string    `gorm:"size:45"                       json:"ip,omitempty"`
	UserAgent string    `gorm:"size:400"                      json:"user_agent,omitempty"`
	ExpiresAt time.Time `gorm:"index;not null"                json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// VerificationToken is keyed by email rather than user id: a reset request for an
// unregistered address still writes a row, so the request path behaves the same
// either way.
type VerificationToken struct {
	ID        string    `gorm:"primaryKey;size:36"                          json:"id"`
	Email     string    `gorm:"index:idx_subject_purpose;size:254;not null" json:"email"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"               json:"-"`
	Purpose   string    `gorm:"index:idx_subject_purpose;size:16;not null"  json:"purpose"`
	ExpiresAt time.Time `gorm:"index;not null"                              json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID        string    `gorm:"primaryKey;size:36"            json:"id"`
	Title     string    `gorm:"size:200;not null"             json:"title"`
	Slug      string    `gorm:"uniqueIndex;size:220;not null" json:"slug"`
	Excerpt   string    `gorm:"size:500"                      json:"excerpt,omitempty"`
	Body      string    `gorm:"not null"                      json:"body"`
	Published bool      `gorm:"index;not null;default:false"  json:"published"`
	AuthorID  string    `gorm:"index;size:36;not null"        json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Author User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type ContactMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:120;not null"        json:"name"`
	Email     string    `gorm:"size:254;not null"        json:"email"`
	Subject   string    `gorm:"size:200"                 json:"subject,omitempty"`
	Body      string    `gorm:"not null"                 json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type NewsletterSubscriber struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Email     string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Confirmed bool      `gorm:"not null;default:false"        json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         string         `gorm:"default:'user'" json:"role"` // admin, user
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

const (
	MessageQueued = "queued"
	MessageSent   = "sent"
	MessageFailed = "failed"
)

// Message is one outbound SMS, from acceptance to its final outcome.
type Message struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"` // job id
	Destination string     `gorm:"index;not null" json:"destination"`
	Text        string     `gorm:"not null" json:"text"`
	Source      string     `gorm:"index" json:"source"` // api, queue, notification, mcp
	Status      string     `gorm:"index;not null" json:"status"`
	MessageRef  string     `json:"message_ref,omitempty"` // +CMGS reference
	Attempts    int        `json:"attempts"`
	Segments    int        `json:"segments"`
	Oversize    bool       `json:"oversize"`
	Error       string     `json:"error,omitempty"`
	Transcript  string     `gorm:"type:text" json:"transcript,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Webhook receives an alert whenever a delivery fails.
type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	URL       string    `gorm:"not null" json:"url" binding:"required,url"`
	Platform  string    `json:"platform"`   // telegram, slack, generic
	ChannelID string    `json:"channel_id"` // For Telegram
	Template  string    `json:"template"`   // "SMS to {{.Destination}} failed: {{.Error}}"
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

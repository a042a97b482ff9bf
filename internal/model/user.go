package model

import "time"

// Delivery channel preferences.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// User carries the fields the engine reads for message rendering and
// delivery. Profile data beyond that belongs to the surrounding
// application.
type User struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Email       string `json:"email" db:"email"`

	// TelegramChatID is the chat to deliver to when Channel is
	// "telegram". Zero when the user never linked a chat.
	TelegramChatID int64 `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`

	// Channel selects the preferred delivery channel. Empty or
	// unknown values fall back to email.
	Channel string `json:"channel,omitempty" db:"channel"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Project groups related tasks. The engine only copies the linkage
// onto spawned successors.
type Project struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Archived  bool      `json:"archived" db:"archived"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

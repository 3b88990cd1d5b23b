package domain

import "time"

// Message is a mail message descriptor returned by the listing API.
type Message struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	ReceivedAt     time.Time `json:"received_at"`
	HasAttachments bool      `json:"has_attachments"`
	Importance     string    `json:"importance"`
}

// Attachment is a decoded file attachment of a message.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	IsInline    bool   `json:"is_inline"`
}

// ProcessedRecord tracks a message that has already been handled.
type ProcessedRecord struct {
	MessageID   string            `json:"message_id"`
	ProcessedAt time.Time         `json:"processed_at"`
	Metadata    map[string]string `json:"metadata"`
}

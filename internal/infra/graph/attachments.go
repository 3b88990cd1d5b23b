package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vietddude/inboxd/internal/core/domain"
)

type attachmentPage struct {
	Value []attachmentResource `json:"value"`
}

type attachmentResource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
	IsInline     bool   `json:"isInline"`
}

// ListAttachments fetches and decodes the file attachments of a
// message. Inline attachments and those over the configured size
// ceiling are skipped, not failed.
func (c *Client) ListAttachments(
	ctx context.Context,
	messageID string,
) ([]domain.Attachment, error) {
	endpoint := fmt.Sprintf("%s/users/%s/messages/%s/attachments",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Mailbox), url.PathEscape(messageID))

	resp, err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Label:  "list_attachments",
	})
	if err != nil {
		return nil, &domain.AttachmentError{MessageID: messageID, Err: err}
	}

	var page attachmentPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, &domain.AttachmentError{
			MessageID: messageID,
			Err:       fmt.Errorf("parse attachment list: %w", err),
		}
	}

	var attachments []domain.Attachment
	for _, a := range page.Value {
		if a.IsInline {
			continue
		}
		if a.Size > c.cfg.MaxAttachmentSize {
			c.log.Warn("Skipping oversized attachment",
				"message_id", messageID, "name", a.Name, "size", a.Size)
			continue
		}
		if !c.contentTypeAllowed(a.ContentType) {
			c.log.Info("Skipping attachment with unsupported content type",
				"message_id", messageID, "name", a.Name, "content_type", a.ContentType)
			continue
		}
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			return nil, &domain.AttachmentError{
				MessageID: messageID,
				Err:       fmt.Errorf("decode attachment %s: %w", a.Name, err),
			}
		}
		attachments = append(attachments, domain.Attachment{
			ID:          a.ID,
			MessageID:   messageID,
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
			Content:     content,
			IsInline:    a.IsInline,
		})
	}
	return attachments, nil
}

func (c *Client) contentTypeAllowed(contentType string) bool {
	if len(c.cfg.AllowedContentTypes) == 0 {
		return true
	}
	for _, allowed := range c.cfg.AllowedContentTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

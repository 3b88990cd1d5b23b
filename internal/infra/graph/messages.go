package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
)

const messageSelectFields = "id,subject,receivedDateTime,hasAttachments,importance"

// messagePage is one page of the listing API envelope.
type messagePage struct {
	Value    []messageResource `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

type messageResource struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	HasAttachments   bool      `json:"hasAttachments"`
	Importance       string    `json:"importance"`
}

// ListMessages fetches message descriptors received at or after since,
// following continuation links until the server is exhausted or max
// items have been collected. max <= 0 means no ceiling.
func (c *Client) ListMessages(
	ctx context.Context,
	since time.Time,
	max int,
) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Mailbox), url.PathEscape(c.cfg.Folder))

	pageSize := 50
	if max > 0 && max < pageSize {
		pageSize = max
	}
	query := url.Values{}
	query.Set("$top", strconv.Itoa(pageSize))
	query.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	query.Set("$select", messageSelectFields)
	query.Set("$orderby", "receivedDateTime desc")

	req := Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Query:  query,
		Label:  "list_messages",
	}

	var messages []domain.Message
	for {
		resp, err := c.Execute(ctx, req)
		if err != nil {
			return nil, err
		}

		var page messagePage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("parse message page: %w", err)
		}

		for _, m := range page.Value {
			messages = append(messages, domain.Message{
				ID:             m.ID,
				Subject:        m.Subject,
				ReceivedAt:     m.ReceivedDateTime,
				HasAttachments: m.HasAttachments,
				Importance:     m.Importance,
			})
			if max > 0 && len(messages) >= max {
				c.log.Debug("Message ceiling reached", "count", len(messages))
				return messages, nil
			}
		}

		if page.NextLink == "" {
			return messages, nil
		}
		// The continuation link carries its own query string.
		req = Request{
			Method: http.MethodGet,
			URL:    page.NextLink,
			Label:  "list_messages",
		}
	}
}

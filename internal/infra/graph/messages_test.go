package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListMessages_FollowsContinuationLinks(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/intake@example.com/mailFolders/inbox/messages",
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("$select"); got != messageSelectFields {
				t.Errorf("unexpected $select: %q", got)
			}
			if got := r.URL.Query().Get("$orderby"); got != "receivedDateTime desc" {
				t.Errorf("unexpected $orderby: %q", got)
			}
			fmt.Fprintf(w, `{
				"value": [
					{"id":"m1","subject":"Report A","receivedDateTime":"2026-08-29T10:00:00Z","hasAttachments":true},
					{"id":"m2","subject":"Report B","receivedDateTime":"2026-08-29T09:00:00Z","hasAttachments":true}
				],
				"@odata.nextLink": %q
			}`, base+"/page2")
		})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"value": [
				{"id":"m3","subject":"Report C","receivedDateTime":"2026-08-29T08:00:00Z","hasAttachments":false}
			]
		}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	c, _ := newTestClient(srv.URL, &fakeTokens{}, 3)
	c.cfg.Folder = "inbox"

	since := time.Date(2026, 8, 29, 7, 0, 0, 0, time.UTC)
	messages, err := c.ListMessages(context.Background(), since, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages across pages, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[2].ID != "m3" {
		t.Errorf("unexpected message order: %+v", messages)
	}
	if !messages[0].HasAttachments || messages[2].HasAttachments {
		t.Error("attachment flags not carried through")
	}
}

func TestListMessages_StopsAtCeiling(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Every page claims a continuation; the ceiling must stop us.
		fmt.Fprintf(w, `{
			"value": [
				{"id":"m%d-1","subject":"s","receivedDateTime":"2026-08-29T10:00:00Z","hasAttachments":true},
				{"id":"m%d-2","subject":"s","receivedDateTime":"2026-08-29T10:00:00Z","hasAttachments":true}
			],
			"@odata.nextLink": "%s/next"
		}`, pages, pages, "http://"+r.Host)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, &fakeTokens{}, 3)
	c.cfg.Folder = "inbox"

	messages, err := c.ListMessages(context.Background(), time.Now().Add(-time.Hour), 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Errorf("expected the ceiling to cap at 3, got %d", len(messages))
	}
	if pages != 2 {
		t.Errorf("expected 2 page fetches, got %d", pages)
	}
}

func TestListMessages_SinceFilter(t *testing.T) {
	var filter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter = r.URL.Query().Get("$filter")
		fmt.Fprint(w, `{"value": []}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, &fakeTokens{}, 3)
	c.cfg.Folder = "inbox"

	since := time.Date(2026, 8, 29, 6, 30, 0, 0, time.UTC)
	if _, err := c.ListMessages(context.Background(), since, 0); err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	want := "receivedDateTime ge 2026-08-29T06:30:00Z"
	if filter != want {
		t.Errorf("expected filter %q, got %q", want, filter)
	}
}

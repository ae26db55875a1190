// Package httpapi implements backend.Client against the conversation
// platform's HTTP API: JSON mutations over HTTP, live queries over a
// websocket subscription, and a local query cache that optimistic updates
// patch while a mutation is in flight.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

// Client talks to the conversation backend over HTTP + websocket
type Client struct {
	baseURL string
	wsURL   string
	token   string
	http    *http.Client
	cache   *liveCache
}

// Options configures a new Client
type Options struct {
	BaseURL      string
	WebsocketURL string
	AuthToken    string
	HTTPClient   *http.Client
}

// New creates a backend client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: opts.BaseURL,
		wsURL:   opts.WebsocketURL,
		token:   opts.AuthToken,
		http:    httpClient,
		cache:   newLiveCache(),
	}
}

// apiError is the wire shape of a structured backend failure
type apiError struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
		Data    struct {
			RetryAfterMS int64 `json:"retry_after_ms"`
		} `json:"data"`
	} `json:"error"`
}

// do posts a JSON mutation and decodes the response into out (which may be
// nil). Non-2xx responses are decoded into a structured *backend.Error when
// the body carries one.
func (c *Client) do(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			return &backend.Error{
				Code:    backend.ErrorCode(ae.Error.Code),
				Message: ae.Error.Message,
				Data: backend.ErrorData{
					RetryAfter: time.Duration(ae.Error.Data.RetryAfterMS) * time.Millisecond,
				},
			}
		}
		return &backend.Error{Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// mutateWithUpdate applies the optimistic cache update, runs the mutation,
// and rolls the patched view back to the last confirmed page if the mutation
// fails. The update is never committed; the next server snapshot replaces the
// patched view either way.
func (c *Client) mutateWithUpdate(update backend.CacheUpdate, mutate func() error) error {
	var patched []string
	if update != nil {
		patched = c.cache.applyPatch(update)
	}
	if err := mutate(); err != nil {
		for _, key := range patched {
			c.cache.rollback(key)
		}
		return err
	}
	return nil
}

// SendMessage sends a user message with an optional optimistic cache update.
func (c *Client) SendMessage(ctx context.Context, args backend.SendMessageArgs, update backend.CacheUpdate) (backend.SendMessageResult, error) {
	var res backend.SendMessageResult
	err := c.mutateWithUpdate(update, func() error {
		return c.do(ctx, "/api/v1/messages/send", args, &res)
	})
	return res, err
}

// CreateThread creates a conversation thread.
func (c *Client) CreateThread(ctx context.Context, args backend.CreateThreadArgs) (backend.CreateThreadResult, error) {
	var res backend.CreateThreadResult
	err := c.do(ctx, "/api/v1/threads/create", args, &res)
	return res, err
}

// UpdateThreadHandoff escalates a thread to human support.
func (c *Client) UpdateThreadHandoff(ctx context.Context, threadID string, update backend.CacheUpdate) error {
	return c.mutateWithUpdate(update, func() error {
		return c.do(ctx, "/api/v1/threads/handoff", map[string]string{"thread_id": threadID}, nil)
	})
}

// UpdateNotificationEmail sets the thread's notification address.
func (c *Client) UpdateNotificationEmail(ctx context.Context, threadID, email string, update backend.CacheUpdate) error {
	return c.mutateWithUpdate(update, func() error {
		return c.do(ctx, "/api/v1/threads/email", map[string]string{"thread_id": threadID, "email": email}, nil)
	})
}

// ListThreads fetches one page of the admin thread listing.
func (c *Client) ListThreads(ctx context.Context, args backend.ListThreadsArgs) (backend.ThreadPage, error) {
	var page backend.ThreadPage
	err := c.do(ctx, "/api/v1/admin/threads/list", args, &page)
	return page, err
}

// AssignThread assigns a thread to an admin.
func (c *Client) AssignThread(ctx context.Context, threadID, adminID string) error {
	return c.do(ctx, "/api/v1/admin/threads/assign", map[string]string{"thread_id": threadID, "admin_id": adminID}, nil)
}

// UpdateThreadStatus updates a thread's triage status.
func (c *Client) UpdateThreadStatus(ctx context.Context, threadID string, status model.TriageStatus) error {
	return c.do(ctx, "/api/v1/admin/threads/status", map[string]string{"thread_id": threadID, "status": string(status)}, nil)
}

// UpdateThreadPriority updates a thread's triage priority.
func (c *Client) UpdateThreadPriority(ctx context.Context, threadID string, priority model.Priority) error {
	return c.do(ctx, "/api/v1/admin/threads/priority", map[string]string{"thread_id": threadID, "priority": string(priority)}, nil)
}

// AddInternalNote records a staff-only note on a thread.
func (c *Client) AddInternalNote(ctx context.Context, threadID, note string) error {
	return c.do(ctx, "/api/v1/admin/threads/note", map[string]string{"thread_id": threadID, "note": note}, nil)
}

// GenerateUploadURL requests a one-time upload destination.
func (c *Client) GenerateUploadURL(ctx context.Context, filename string) (backend.UploadTarget, error) {
	var target backend.UploadTarget
	err := c.do(ctx, "/api/v1/files/upload-url", map[string]string{"filename": filename}, &target)
	return target, err
}

// RegisterFile registers a completed transfer and returns its durable
// reference.
func (c *Client) RegisterFile(ctx context.Context, storageKey, filename string) (backend.FileRef, error) {
	var ref backend.FileRef
	err := c.do(ctx, "/api/v1/files/register", map[string]string{"storage_key": storageKey, "filename": filename}, &ref)
	return ref, err
}

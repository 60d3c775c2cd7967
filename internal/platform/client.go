// Package platform talks to the backend: a REST client for snapshots and
// commands, and a websocket feed for realtime events. All calls carry the
// instance bearer token; a circuit breaker in front of the HTTP transport
// keeps a flapping backend from being hammered.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/chat"
)

// ErrUnauthorized marks a 401 from the backend, meaning the instance token
// expired or was revoked. Callers move the session to AUTH_REQUIRED instead
// of retrying.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// Client is the REST side of the backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a REST client for the given backend base URL.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	st := gobreaker.Settings{
		Name:    "backend-rest",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

type chatDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Unread bool   `json:"unread"`
}

type messageDTO struct {
	ID        json.Number `json:"id"`
	Sender    string      `json:"sender"`
	Body      string      `json:"body"`
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Timestamp int64       `json:"timestamp"`
	Edited    bool        `json:"edited"`
}

type userDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type contactDTO struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// chatsPath maps a conversation kind to its REST collection.
func chatsPath(kind chat.Kind) string {
	if kind == chat.KindInternal {
		return "/api/v1/internal-chats"
	}
	return "/api/v1/chats"
}

// ListChats returns the open conversations of one kind.
func (c *Client) ListChats(ctx context.Context, kind chat.Kind) ([]*chat.Chat, error) {
	var dtos []chatDTO
	if err := c.get(ctx, chatsPath(kind), &dtos); err != nil {
		return nil, fmt.Errorf("list %s chats: %w", kind, err)
	}
	chats := make([]*chat.Chat, 0, len(dtos))
	for _, d := range dtos {
		chats = append(chats, &chat.Chat{
			Key:    chat.ConvKey{Kind: kind, ID: d.ID},
			Name:   d.Name,
			Unread: d.Unread,
		})
	}
	return chats, nil
}

// GetChat fetches one conversation's detail. Used when a chat:started event
// arrives carrying only the id.
func (c *Client) GetChat(ctx context.Context, key chat.ConvKey) (*chat.Chat, error) {
	var d chatDTO
	path := fmt.Sprintf("%s/%d", chatsPath(key.Kind), key.ID)
	if err := c.get(ctx, path, &d); err != nil {
		return nil, fmt.Errorf("get chat %s: %w", key, err)
	}
	return &chat.Chat{Key: key, Name: d.Name, Unread: d.Unread}, nil
}

// ListMessages returns the message history of one conversation, oldest
// first. limit <= 0 means the backend default.
func (c *Client) ListMessages(ctx context.Context, key chat.ConvKey, limit int) ([]*chat.Message, error) {
	path := fmt.Sprintf("%s/%d/messages", chatsPath(key.Kind), key.ID)
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var dtos []messageDTO
	if err := c.get(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", key, err)
	}
	msgs := make([]*chat.Message, 0, len(dtos))
	for _, d := range dtos {
		status, err := chat.ParseStatus(d.Status)
		if err != nil {
			return nil, fmt.Errorf("list messages %s: %w", key, err)
		}
		msgs = append(msgs, &chat.Message{
			ID:        d.ID.String(),
			Conv:      key,
			Sender:    d.Sender,
			Body:      d.Body,
			Type:      chat.MessageType(d.Type),
			Status:    status,
			Timestamp: d.Timestamp,
			Edited:    d.Edited,
		})
	}
	return msgs, nil
}

// MarkRead tells the backend the local user read the conversation. The key
// is fixed at call time, so a focus change while the request is in flight
// cannot redirect it.
func (c *Client) MarkRead(ctx context.Context, key chat.ConvKey) error {
	path := fmt.Sprintf("%s/%d/read", chatsPath(key.Kind), key.ID)
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("mark read %s: %w", key, err)
	}
	return nil
}

// SendMessage submits a text message and returns the server-assigned id.
// clientMsgID deduplicates retries on the backend side.
func (c *Client) SendMessage(ctx context.Context, key chat.ConvKey, clientMsgID, body string) (string, error) {
	req := struct {
		ClientMsgID string `json:"clientMsgId"`
		Body        string `json:"body"`
	}{ClientMsgID: clientMsgID, Body: body}
	var resp struct {
		ID json.Number `json:"id"`
	}
	path := fmt.Sprintf("%s/%d/messages", chatsPath(key.Kind), key.ID)
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", fmt.Errorf("send message %s: %w", key, err)
	}
	return resp.ID.String(), nil
}

// ListUsers returns the workspace user directory (id to display name).
func (c *Client) ListUsers(ctx context.Context) (map[int64]string, error) {
	var dtos []userDTO
	if err := c.get(ctx, "/api/v1/users", &dtos); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make(map[int64]string, len(dtos))
	for _, d := range dtos {
		users[d.ID] = d.Name
	}
	return users, nil
}

// ListContacts returns the saved contact directory (phone to name).
func (c *Client) ListContacts(ctx context.Context) (map[string]string, error) {
	var dtos []contactDTO
	if err := c.get(ctx, "/api/v1/contacts", &dtos); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make(map[string]string, len(dtos))
	for _, d := range dtos {
		contacts[d.Phone] = d.Name
	}
	return contacts, nil
}

// Snapshot fetches everything a bootstrap needs: all open conversations of
// both kinds plus each one's history.
func (c *Client) Snapshot(ctx context.Context) ([]*chat.Chat, []*chat.Message, error) {
	var chats []*chat.Chat
	for _, kind := range []chat.Kind{chat.KindWhatsApp, chat.KindInternal} {
		batch, err := c.ListChats(ctx, kind)
		if err != nil {
			return nil, nil, err
		}
		chats = append(chats, batch...)
	}
	var msgs []*chat.Message
	for _, ch := range chats {
		history, err := c.ListMessages(ctx, ch.Key, 0)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, history...)
	}
	return chats, msgs, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// do runs one request through the circuit breaker. Any error, transport or
// HTTP, counts toward tripping it.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			io.Copy(io.Discard, resp.Body)
			return nil, ErrUnauthorized
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("backend status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &statusError{code: resp.StatusCode, body: string(data)}
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil, nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out != nil {
		return json.Unmarshal(res.([]byte), out)
	}
	return nil
}

// statusError is a 4xx HTTP failure with the response body attached.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.code, e.body)
}

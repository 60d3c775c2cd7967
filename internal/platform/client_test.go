package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/chat"
)

func testBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", zap.NewNop())
}

func TestSnapshotMergesBothKinds(t *testing.T) {
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/api/v1/chats":
			json.NewEncoder(w).Encode([]chatDTO{{ID: 7, Name: "Cliente", Unread: true}})
		case "/api/v1/internal-chats":
			json.NewEncoder(w).Encode([]chatDTO{{ID: 3, Name: "Suporte"}})
		case "/api/v1/chats/7/messages":
			json.NewEncoder(w).Encode([]messageDTO{
				{ID: "101", Sender: "external:5511999998888", Body: "oi", Type: "chat", Status: "RECEIVED", Timestamp: 100},
			})
		case "/api/v1/internal-chats/3/messages":
			json.NewEncoder(w).Encode([]messageDTO{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	chats, msgs, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].Key != (chat.ConvKey{Kind: chat.KindWhatsApp, ID: 7}) || !chats[0].Unread {
		t.Errorf("chats[0] = %+v", chats[0])
	}
	if chats[1].Key != (chat.ConvKey{Kind: chat.KindInternal, ID: 3}) {
		t.Errorf("chats[1] = %+v", chats[1])
	}
	if len(msgs) != 1 || msgs[0].ID != "101" || msgs[0].Status != chat.StatusReceived {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestMarkReadUsesKindPath(t *testing.T) {
	var paths []string
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
	})

	if err := c.MarkRead(context.Background(), chat.ConvKey{Kind: chat.KindWhatsApp, ID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkRead(context.Background(), chat.ConvKey{Kind: chat.KindInternal, ID: 3}); err != nil {
		t.Fatal(err)
	}
	want := []string{"POST /api/v1/chats/7/read", "POST /api/v1/internal-chats/3/read"}
	for i, w := range want {
		if paths[i] != w {
			t.Errorf("call %d = %q, want %q", i, paths[i], w)
		}
	}
}

func TestSendMessage(t *testing.T) {
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chats/7/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			ClientMsgID string `json:"clientMsgId"`
			Body        string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.ClientMsgID != "c1" || req.Body != "olá" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]int64{"id": 555})
	})

	id, err := c.SendMessage(context.Background(), chat.ConvKey{Kind: chat.KindWhatsApp, ID: 7}, "c1", "olá")
	if err != nil {
		t.Fatal(err)
	}
	if id != "555" {
		t.Errorf("server id = %q, want 555", id)
	}
}

func TestUnauthorized(t *testing.T) {
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListUsers(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		if _, err := c.ListUsers(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.ListUsers(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want breaker open", err)
	}
}

func TestListDirectory(t *testing.T) {
	c := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/users":
			json.NewEncoder(w).Encode([]userDTO{{ID: 1, Name: "Ana"}})
		case "/api/v1/contacts":
			json.NewEncoder(w).Encode([]contactDTO{{Phone: "5511999998888", Name: "Cliente"}})
		}
	})

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if users[1] != "Ana" {
		t.Errorf("users = %v", users)
	}
	contacts, err := c.ListContacts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if contacts["5511999998888"] != "Cliente" {
		t.Errorf("contacts = %v", contacts)
	}
}

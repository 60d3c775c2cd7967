package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/cache"
	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/compose"
	"github.com/zapdesk/console/internal/config"
	"github.com/zapdesk/console/internal/outbox"
	"github.com/zapdesk/console/internal/platform"
	"github.com/zapdesk/console/internal/status"
)

type fakeBackend struct {
	markRead []chat.ConvKey
	fail     bool
}

func (f *fakeBackend) MarkRead(_ context.Context, key chat.ConvKey) error {
	if f.fail {
		return fmt.Errorf("backend down")
	}
	f.markRead = append(f.markRead, key)
	return nil
}

type okSubmitter struct{}

func (okSubmitter) SendMessage(_ context.Context, _ chat.ConvKey, _, _ string) (string, error) {
	return "srv-1", nil
}

type fixture struct {
	srv     *httptest.Server
	state   *chat.State
	bus     *bus.Bus
	backend *fakeBackend
}

func testServer(t *testing.T) *fixture {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	state := chat.NewState()
	backend := &fakeBackend{}
	sender := outbox.NewSender(db, state, b, okSubmitter{}, time.Hour, zap.NewNop())
	identity := &platform.Identity{UserID: 42, InstanceID: "inst-1"}

	s := New(config.Gateway{}, state, status.NewMachine(b), backend, sender, db, b, identity, zap.NewNop())
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, state: state, bus: b, backend: backend}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) post(t *testing.T, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func seedChat(t *testing.T, state *chat.State, id int64) chat.ConvKey {
	t.Helper()
	key := chat.ConvKey{Kind: chat.KindWhatsApp, ID: id}
	if err := state.ChatStarted(&chat.Chat{Key: key, Name: "Cliente"}, []*chat.Message{{
		ID:        "m1",
		Conv:      key,
		Sender:    "external:5511999998888",
		Body:      "oi",
		Type:      chat.TypeChat,
		Status:    chat.StatusReceived,
		Timestamp: 100,
	}}); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestListChats(t *testing.T) {
	f := testServer(t)
	seedChat(t, f.state, 7)

	var chats []chatJSON
	if code := f.get(t, "/api/chats", &chats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(chats) != 1 || chats[0].ID != 7 || chats[0].Kind != chat.KindWhatsApp {
		t.Fatalf("chats = %+v", chats)
	}
	if !chats[0].Unread || chats[0].LastMessage == nil || chats[0].LastMessage.ID != "m1" {
		t.Errorf("chats[0] = %+v", chats[0])
	}
}

func TestListMessages(t *testing.T) {
	f := testServer(t)
	seedChat(t, f.state, 7)

	var msgs []messageJSON
	if code := f.get(t, "/api/chats/wpp/7/messages", &msgs); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("msgs = %+v", msgs)
	}

	if code := f.get(t, "/api/chats/telegram/7/messages", nil); code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d", code)
	}
	if code := f.get(t, "/api/chats/wpp/zero/messages", nil); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", code)
	}
}

func TestMarkRead(t *testing.T) {
	f := testServer(t)
	key := seedChat(t, f.state, 7)

	if code := f.post(t, "/api/chats/wpp/7/read", nil, nil); code != http.StatusNoContent {
		t.Fatalf("status = %d", code)
	}
	if len(f.backend.markRead) != 1 || f.backend.markRead[0] != key {
		t.Errorf("backend calls = %+v", f.backend.markRead)
	}
	if c, _ := f.state.Chat(key); c.Unread {
		t.Error("unread flag survived mark-as-read")
	}
}

func TestMarkReadBackendFailure(t *testing.T) {
	f := testServer(t)
	key := seedChat(t, f.state, 7)
	f.backend.fail = true

	if code := f.post(t, "/api/chats/wpp/7/read", nil, nil); code != http.StatusBadGateway {
		t.Fatalf("status = %d", code)
	}
	// Local state is not touched when the backend call fails.
	if c, _ := f.state.Chat(key); !c.Unread {
		t.Error("unread cleared despite backend failure")
	}
}

func TestSendMessage(t *testing.T) {
	f := testServer(t)
	key := seedChat(t, f.state, 7)

	var resp map[string]string
	code := f.post(t, "/api/chats/wpp/7/messages", map[string]string{"body": "olá"}, &resp)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	clientID := resp["clientMsgId"]
	if clientID == "" {
		t.Fatal("no clientMsgId returned")
	}

	msgs := f.state.Messages(key)
	if len(msgs) != 2 || msgs[1].ID != clientID || msgs[1].Status != chat.StatusPending {
		t.Errorf("messages = %+v", msgs)
	}

	if code := f.post(t, "/api/chats/wpp/7/messages", map[string]string{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", code)
	}
}

func TestFocusAndBlur(t *testing.T) {
	f := testServer(t)
	key := seedChat(t, f.state, 7)

	if code := f.post(t, "/api/focus", map[string]any{"kind": "wpp", "id": 7}, nil); code != http.StatusNoContent {
		t.Fatalf("status = %d", code)
	}
	if got, ok := f.state.Focused(); !ok || got != key {
		t.Errorf("focused = %v %v", got, ok)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/focus", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("blur status = %d", resp.StatusCode)
	}
	if _, ok := f.state.Focused(); ok {
		t.Error("still focused after blur")
	}

	if code := f.post(t, "/api/focus", map[string]any{"kind": "wpp", "id": 0}, nil); code != http.StatusBadRequest {
		t.Errorf("invalid focus status = %d", code)
	}
}

func TestComposeRoundTrip(t *testing.T) {
	f := testServer(t)
	seedChat(t, f.state, 7)

	var draft compose.State
	f.post(t, "/api/chats/wpp/7/compose", map[string]string{"action": "set_text", "text": "rascunho"}, &draft)
	if draft.Text != "rascunho" {
		t.Fatalf("draft = %+v", draft)
	}

	f.post(t, "/api/chats/wpp/7/compose", map[string]any{"action": "quote", "messageId": "m1"}, &draft)
	if draft.Text != "rascunho" || draft.Quoted == nil || draft.Quoted.MessageID != "m1" {
		t.Fatalf("draft = %+v", draft)
	}

	var got compose.State
	f.get(t, "/api/chats/wpp/7/compose", &got)
	if got.Text != "rascunho" {
		t.Errorf("stored draft = %+v", got)
	}

	// Unknown action resets the draft.
	f.post(t, "/api/chats/wpp/7/compose", map[string]string{"action": "frobnicate"}, &draft)
	if draft.Text != "" || draft.Quoted != nil {
		t.Errorf("draft after unknown action = %+v", draft)
	}
}

func TestSendResetsCompose(t *testing.T) {
	f := testServer(t)
	seedChat(t, f.state, 7)

	f.post(t, "/api/chats/wpp/7/compose", map[string]string{"action": "set_text", "text": "olá"}, nil)
	f.post(t, "/api/chats/wpp/7/messages", map[string]string{"body": "olá"}, nil)

	var draft compose.State
	f.get(t, "/api/chats/wpp/7/compose", &draft)
	if draft.Text != "" {
		t.Errorf("draft survived send: %+v", draft)
	}
}

func TestSession(t *testing.T) {
	f := testServer(t)

	var resp struct {
		Status     string `json:"status"`
		UserID     int64  `json:"userId"`
		InstanceID string `json:"instanceId"`
	}
	if code := f.get(t, "/api/session", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Status != string(status.Booting) || resp.UserID != 42 || resp.InstanceID != "inst-1" {
		t.Errorf("session = %+v", resp)
	}
}

func TestWebsocketForwardsBusEvents(t *testing.T) {
	f := testServer(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The bus subscription happens just after the handshake response is
	// written; give the handler a moment to register it.
	time.Sleep(50 * time.Millisecond)

	f.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: map[string]string{"hello": "ui"}})
	f.bus.Publish(bus.Event{Kind: bus.KindRealtime, Payload: "internal"})
	f.bus.Publish(bus.Event{Kind: bus.KindNotify, Payload: map[string]string{"title": "João"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Kind != bus.KindChatUpdated {
		t.Errorf("first frame = %+v", first)
	}
	var second frame
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	// The raw rt.* feed never reaches the browser.
	if second.Kind != bus.KindNotify {
		t.Errorf("second frame = %+v, want notify", second)
	}
}

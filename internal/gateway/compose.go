package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/compose"
)

// composeStore keeps one draft per conversation. Drafts live only in
// memory; a daemon restart clears them.
type composeStore struct {
	mu     sync.Mutex
	drafts map[chat.ConvKey]compose.State
}

func newComposeStore() *composeStore {
	return &composeStore{drafts: make(map[chat.ConvKey]compose.State)}
}

func (cs *composeStore) Get(key chat.ConvKey) compose.State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.drafts[key]
}

func (cs *composeStore) Apply(key chat.ConvKey, a compose.Action) compose.State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	next := compose.Reduce(cs.drafts[key], a)
	cs.drafts[key] = next
	return next
}

func (cs *composeStore) Reset(key chat.ConvKey) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.drafts, key)
}

// composeAction is the wire form of a compose action. Exactly one action
// name per request; the fields the action does not use are ignored.
type composeAction struct {
	Action    string            `json:"action"`
	Text      string            `json:"text"`
	FileName  string            `json:"fileName"`
	FileID    string            `json:"fileId"`
	Audio     bool              `json:"audio"`
	Document  bool              `json:"document"`
	MessageID string            `json:"messageId"`
	Mentions  []compose.Mention `json:"mentions"`
}

// decodeAction maps a wire action to its reducer action. Unknown names
// return nil, which the reducer treats as a reset.
func decodeAction(a composeAction) compose.Action {
	switch a.Action {
	case "set_text":
		return compose.SetText{Text: a.Text}
	case "attach_file":
		return compose.AttachFile{FileName: a.FileName}
	case "attach_uploaded":
		return compose.AttachUploaded{FileID: a.FileID}
	case "set_audio":
		return compose.SetAudio{Audio: a.Audio}
	case "set_document":
		return compose.SetDocument{Document: a.Document}
	case "quote":
		return compose.Quote{MessageID: a.MessageID}
	case "set_mentions":
		return compose.SetMentions{Mentions: a.Mentions}
	case "toggle_emoji":
		return compose.ToggleEmoji{}
	case "reset":
		return compose.Reset{}
	}
	return nil
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	key, ok := s.convKey(w, r)
	if !ok {
		return
	}
	var req composeAction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request body")
		return
	}
	next := s.compose.Apply(key, decodeAction(req))
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleComposeGet(w http.ResponseWriter, r *http.Request) {
	key, ok := s.convKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.compose.Get(key))
}

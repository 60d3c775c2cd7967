// Package compose holds the message-compose box state machine. It is pure
// and single-threaded: the gateway applies actions coming from the UI and
// sends back the resulting state; no I/O happens here.
package compose

// Mention references a user tagged in the draft text.
type Mention struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

// QuotedRef points at the message being replied to.
type QuotedRef struct {
	MessageID string `json:"messageId"`
}

// State is one conversation's draft. A locally picked file (FileName) and a
// reference to a pre-uploaded file (UploadedFileID) are mutually exclusive;
// setting one clears the other.
type State struct {
	Text           string     `json:"text"`
	FileName       string     `json:"fileName"`
	UploadedFileID string     `json:"uploadedFileId"`
	Audio          bool       `json:"audio"`
	Document       bool       `json:"document"`
	Quoted         *QuotedRef `json:"quoted"`
	Mentions       []Mention  `json:"mentions"`
	EmojiOpen      bool       `json:"emojiOpen"`
}

// Action mutates a compose State. Concrete actions form a closed set; an
// action outside it resets the draft to blank. Callers must not rely on
// unknown actions being no-ops.
type Action interface {
	isAction()
}

// SetText replaces the draft text.
type SetText struct{ Text string }

// AttachFile attaches a locally picked file.
type AttachFile struct{ FileName string }

// AttachUploaded references a file already uploaded to the platform.
type AttachUploaded struct{ FileID string }

// SetAudio toggles audio-recording mode.
type SetAudio struct{ Audio bool }

// SetDocument toggles document mode for the attachment.
type SetDocument struct{ Document bool }

// Quote sets or clears (empty id) the quoted message.
type Quote struct{ MessageID string }

// SetMentions replaces the mention list.
type SetMentions struct{ Mentions []Mention }

// ToggleEmoji flips the emoji panel.
type ToggleEmoji struct{}

// Reset clears the draft, typically after a successful send.
type Reset struct{}

func (SetText) isAction()        {}
func (AttachFile) isAction()     {}
func (AttachUploaded) isAction() {}
func (SetAudio) isAction()       {}
func (SetDocument) isAction()    {}
func (Quote) isAction()          {}
func (SetMentions) isAction()    {}
func (ToggleEmoji) isAction()    {}
func (Reset) isAction()          {}

// Reduce applies one action to the draft. Each action replaces exactly the
// fields it owns; everything else carries over unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetText:
		s.Text = a.Text
		return s
	case AttachFile:
		s.FileName = a.FileName
		s.UploadedFileID = ""
		return s
	case AttachUploaded:
		s.UploadedFileID = a.FileID
		s.FileName = ""
		return s
	case SetAudio:
		s.Audio = a.Audio
		return s
	case SetDocument:
		s.Document = a.Document
		return s
	case Quote:
		if a.MessageID == "" {
			s.Quoted = nil
		} else {
			s.Quoted = &QuotedRef{MessageID: a.MessageID}
		}
		return s
	case SetMentions:
		s.Mentions = a.Mentions
		return s
	case ToggleEmoji:
		s.EmojiOpen = !s.EmojiOpen
		return s
	case Reset:
		return State{}
	}
	// Unknown action: reset to a blank draft.
	return State{}
}

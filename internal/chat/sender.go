package chat

import (
	"strconv"
	"strings"
	"sync"
)

const (
	senderMe     = "me"
	senderSystem = "system"

	// Display fallbacks. The notification text contract depends on these
	// exact literals, so they are constants rather than ad-hoc strings.
	displaySystem  = "Sistema"
	displayUnknown = "Desconhecido"
	displayMe      = "Você"
)

// SenderKind classifies a parsed sender tag.
type SenderKind int

const (
	SenderMe SenderKind = iota
	SenderSystem
	SenderUser
	SenderExternal
	SenderUnknown
)

// Sender is a decoded sender tag.
type Sender struct {
	Kind   SenderKind
	UserID int64  // set for SenderUser
	Phone  string // set for SenderExternal
	Name   string // optional name fragment for SenderExternal
}

// ParseSender decodes the free-form sender tag carried on every message:
// "me", "system", "user:<id>" or "external:<phone>[:<name>]".
func ParseSender(raw string) Sender {
	switch {
	case raw == senderMe:
		return Sender{Kind: SenderMe}
	case raw == senderSystem:
		return Sender{Kind: SenderSystem}
	case strings.HasPrefix(raw, "user:"):
		id, err := strconv.ParseInt(raw[len("user:"):], 10, 64)
		if err != nil {
			return Sender{Kind: SenderUnknown}
		}
		return Sender{Kind: SenderUser, UserID: id}
	case strings.HasPrefix(raw, "external:"):
		rest := raw[len("external:"):]
		phone, name, _ := strings.Cut(rest, ":")
		if phone == "" {
			return Sender{Kind: SenderUnknown}
		}
		return Sender{Kind: SenderExternal, Phone: phone, Name: name}
	}
	return Sender{Kind: SenderUnknown}
}

// Directory holds read-only snapshots of the platform's users and contacts,
// used to resolve sender tags to display names. Lookups never mutate the
// snapshots; they are replaced wholesale when a fresh fetch lands.
type Directory struct {
	mu       sync.RWMutex
	users    map[int64]string
	contacts map[string]string // phone -> name
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users:    make(map[int64]string),
		contacts: make(map[string]string),
	}
}

// SetUsers replaces the user snapshot.
func (d *Directory) SetUsers(users map[int64]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = users
}

// SetContacts replaces the contact snapshot.
func (d *Directory) SetContacts(contacts map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts = contacts
}

// DisplayName resolves a raw sender tag to the name shown in notifications
// and the message view. The fallback chain is fixed:
//
//	me                  -> "Você"
//	system              -> "Sistema"
//	user:<id>           -> user name, else "Desconhecido"
//	external:<p>[:<n>]  -> name fragment (when it is not just the phone),
//	                       else contact name, else formatted phone
//	anything else       -> "Desconhecido"
func (d *Directory) DisplayName(raw string) string {
	s := ParseSender(raw)
	switch s.Kind {
	case SenderMe:
		return displayMe
	case SenderSystem:
		return displaySystem
	case SenderUser:
		d.mu.RLock()
		name, ok := d.users[s.UserID]
		d.mu.RUnlock()
		if ok && name != "" {
			return name
		}
		return displayUnknown
	case SenderExternal:
		if s.Name != "" && s.Name != s.Phone {
			return s.Name
		}
		d.mu.RLock()
		name, ok := d.contacts[s.Phone]
		d.mu.RUnlock()
		if ok && name != "" {
			return name
		}
		return FormatPhone(s.Phone)
	}
	return displayUnknown
}

// FormatPhone renders a raw phone number for display. Numbers in the
// CC+AA+NNNNNNNNN shape used by the platform become "+CC (AA) NNNNN-NNNN";
// anything else is shown with a bare "+" prefix.
func FormatPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return displayUnknown
	}
	if len(digits) == 13 {
		return "+" + digits[:2] + " (" + digits[2:4] + ") " + digits[4:9] + "-" + digits[9:]
	}
	if len(digits) == 12 {
		return "+" + digits[:2] + " (" + digits[2:4] + ") " + digits[4:8] + "-" + digits[8:]
	}
	return "+" + digits
}

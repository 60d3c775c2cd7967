package chat

import "fmt"

// Resolve merges an incoming delivery status into a stored one. Status only
// moves forward along PENDING < SENT < RECEIVED < READ; an incoming value
// behind the stored one is discarded and the stored value kept.
//
// A stored SENT is never replaced, not even by RECEIVED or READ. That
// matches the production behavior this code mirrors and is pinned by tests;
// whether SENT was ever meant to advance through this path is pending
// product-owner review. Do not "fix" it here without that call.
//
// Both arguments must be members of the closed status set; anything else is
// rejected as a fatal input.
func Resolve(prev, incoming Status) (Status, error) {
	if err := checkStatus(prev); err != nil {
		return "", err
	}
	if err := checkStatus(incoming); err != nil {
		return "", err
	}

	switch prev {
	case StatusPending:
		// An unconfirmed send is superseded by anything.
		return incoming, nil
	case StatusSent:
		return StatusSent, nil
	case StatusReceived:
		if incoming == StatusSent || incoming == StatusPending {
			return StatusReceived, nil
		}
		return incoming, nil
	case StatusRead:
		return StatusRead, nil
	}
	return incoming, nil
}

func checkStatus(s Status) error {
	switch s {
	case StatusPending, StatusSent, StatusReceived, StatusRead:
		return nil
	}
	return fmt.Errorf("unknown message status %q", s)
}

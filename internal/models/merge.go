package models

import (
	"fmt"
	"strings"
	"time"
)

// MergeState is a MergeSession's position in its mini-state-machine
// (spec §4.6): None -> Open -> (Open|Committed|Cancelled).
type MergeState string

const (
	MergeNone      MergeState = "none"
	MergeOpen      MergeState = "open"
	MergeCommitted MergeState = "committed"
	MergeCancelled MergeState = "cancelled"
)

// MergeInputKind distinguishes the three accepted forms of a merge input
// (spec §4.6 add).
type MergeInputKind string

const (
	MergeInputMedia MergeInputKind = "media" // a chat-message carrying media
	MergeInputURL   MergeInputKind = "url"
	MergeInputRange MergeInputKind = "range" // base/a-b, already expanded to individual MergeInput values
)

// MergeInput is one accumulated item in a MergeSession.
type MergeInput struct {
	Kind        MergeInputKind
	MessageID   int64  // set for Kind == media or an expanded range element
	URL         string // set for Kind == url; normalized for dedup
	EstSize     int64  // estimated bytes, for the 8 GiB cumulative cap
	DisplayName string
}

// MergeOptions carries commit-time overrides (spec §4.6 commit(owner, opts)).
type MergeOptions struct {
	OutputName string // overrides pattern-detected name, if set
}

// MergeSession is the user-scoped accumulator described in spec §4.6. At
// most one exists per owner id at once (enforced by internal/merge's
// per-owner table, not by this struct).
type MergeSession struct {
	OwnerID   int64
	State     MergeState
	Inputs    []MergeInput
	Origin    MessageRef
	UpdatedAt time.Time
}

// MessageRef identifies the chat message that originated a session or a
// merge input (spec §3 MergeSession.origin message).
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// String encodes a MessageRef as the chatmedia driver's link form, e.g.
// "chatmedia:123:456".
func (r MessageRef) String() string {
	return fmt.Sprintf("chatmedia:%d:%d", r.ChatID, r.MessageID)
}

// ParseMessageRef decodes the form produced by MessageRef.String.
func ParseMessageRef(link string) (MessageRef, error) {
	parts := strings.Split(link, ":")
	if len(parts) != 3 || parts[0] != "chatmedia" {
		return MessageRef{}, fmt.Errorf("not a chatmedia reference: %q", link)
	}
	var ref MessageRef
	if _, err := fmt.Sscanf(parts[1], "%d", &ref.ChatID); err != nil {
		return MessageRef{}, fmt.Errorf("bad chat id in %q: %w", link, err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &ref.MessageID); err != nil {
		return MessageRef{}, fmt.Errorf("bad message id in %q: %w", link, err)
	}
	return ref, nil
}

// EstimatedBytes sums EstSize across all current inputs.
func (s *MergeSession) EstimatedBytes() int64 {
	var total int64
	for _, in := range s.Inputs {
		total += in.EstSize
	}
	return total
}

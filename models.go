package main

import (
	"io"
	"time"
)

// TicketStatus values are stored verbatim in the database; the Russian
// strings match what users and admins see in the chat.
type TicketStatus string

const (
	StatusAccepted   TicketStatus = "Принято"
	StatusInProgress TicketStatus = "В работе"
	StatusResolved   TicketStatus = "Решено"
)

func (s TicketStatus) rank() int {
	switch s {
	case StatusAccepted:
		return 1
	case StatusInProgress:
		return 2
	case StatusResolved:
		return 3
	}
	return 0
}

// CanTransitionTo reports whether a status change is a strictly forward
// move. Same-status and backward moves are rejected.
func (s TicketStatus) CanTransitionTo(to TicketStatus) bool {
	return s.rank() > 0 && to.rank() > s.rank()
}

func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch TicketStatus(s) {
	case StatusAccepted, StatusInProgress, StatusResolved:
		return TicketStatus(s), true
	}
	return "", false
}

type Ticket struct {
	ID          int64
	UserID      string // chat user ID of the ticket owner (immutable)
	Config      string
	OrgDept     string
	Name        string
	Phone       string
	Description string
	Status      TicketStatus
	CreatedAt   time.Time
}

type Feedback struct {
	TicketID int64
	Rating   int // 1..5
}

type AttachmentKind int

const (
	AttachmentPhoto AttachmentKind = iota
	AttachmentVideo
	AttachmentAudio
	AttachmentDocument
)

// Attachment references a user-submitted file on the chat transport.
// Ref is the transport's private download URL; the bytes are only
// materialized when the admin mail is assembled.
type Attachment struct {
	Kind AttachmentKind
	Ref  string
	Name string
}

// placeholderLine is the human-readable line appended to the ticket
// description when an attachment is accepted.
func (a Attachment) placeholderLine() string {
	switch a.Kind {
	case AttachmentPhoto:
		return "Прикреплённое фото"
	case AttachmentVideo:
		return "Прикреплённое видео"
	case AttachmentAudio:
		return "Прикреплённое аудио: " + a.Name
	}
	return "Прикреплённый документ: " + a.Name
}

// Button is a transport-neutral inline keyboard button. ActionID routes
// the click back through the interaction handler; Value carries the
// payload (config name, "ticketID:status", "ticketID:rating").
type Button struct {
	Text     string
	ActionID string
	Value    string
}

// Outgoing is a composed message to be delivered by the caller. When
// Replace is set the previous tracked prompt for the session is deleted
// first and the new message handle is tracked in its place.
type Outgoing struct {
	Text     string
	Keyboard [][]Button
	Replace  bool
}

// MessageRef identifies a delivered chat message for later deletion.
type MessageRef struct {
	Channel   string
	Timestamp string
}

// Notifier is the chat transport surface the core depends on. The Slack
// client implements it in production; tests substitute a fake.
type Notifier interface {
	// Send delivers a message to the user's direct-message channel.
	Send(userID string, out Outgoing) (MessageRef, error)
	// Delete removes a previously sent message. Failures are expected
	// (the message may already be gone) and are only logged by callers.
	Delete(ref MessageRef) error
	// Schedule runs fn once after the delay. Fire-and-forget; only
	// process shutdown cancels it.
	Schedule(d time.Duration, fn func())
	// FetchFile downloads a user-submitted file by its transport
	// reference. Used only to materialize attachments for outbound mail.
	FetchFile(ref string, w io.Writer) error
}

package main

import (
	"fmt"
	"strings"
	"sync"
)

// MaxAttachments is the hard budget per ticket draft.
const MaxAttachments = 3

// noDescription is stored when the user submits without describing the
// problem in text.
const noDescription = "Без описания"

// skipSentinel ("нет", case-insensitive) finishes the description step
// without adding more content.
const skipSentinel = "нет"

// Step orders field acquisition during ticket creation. A field is only
// set once its predecessor step has completed.
type Step int

const (
	StepIdle Step = iota
	StepAwaitingConfig
	StepAwaitingOrgDept
	StepAwaitingName
	StepAwaitingPhone
	StepAwaitingDescription
)

// configOptions is the fixed set of 1C configurations offered at the
// AwaitingConfig step; free text is not accepted there.
var configOptions = []string{
	"Бухгалтерия предприятия",
	"ЗУП",
	"УНФ",
	"УТ",
	"Документооборот",
	"Общепит",
	"Другая",
}

func isKnownConfig(name string) bool {
	for _, c := range configOptions {
		if c == name {
			return true
		}
	}
	return false
}

// Draft is the partially filled ticket collected across turns.
type Draft struct {
	Config      string
	OrgDept     string
	Name        string
	Phone       string
	Description string
	Attachments []Attachment
}

// Session is the ephemeral per-user conversation state. LastPrompt
// tracks the bot's own most recent progress message so it can be
// replaced instead of stacking up.
type Session struct {
	UserID     string
	Step       Step
	Draft      Draft
	LastPrompt MessageRef
}

type EventKind int

const (
	EventBegin EventKind = iota
	EventSelectConfig
	EventText
	EventContact
	EventAttachment
	EventFinish
	EventCancel
)

// Event is one inbound user action, already translated from the
// transport's representation.
type Event struct {
	Kind       EventKind
	Text       string // free text, selected config name, or shared phone
	Attachment *Attachment
}

// Advance applies one event to a session and returns the next session,
// the messages to deliver, and whether the draft is ready to submit.
// It never touches storage or the transport; the caller persists the
// returned session and delivers the outgoing values. Events that have
// no meaning at the current step leave the session unchanged and emit
// nothing.
func Advance(sess Session, ev Event) (Session, []Outgoing, bool) {
	if ev.Kind == EventCancel {
		if sess.Step == StepIdle {
			return sess, nil, false
		}
		return Session{UserID: sess.UserID}, nil, false
	}

	switch sess.Step {
	case StepIdle:
		if ev.Kind == EventBegin {
			sess.Step = StepAwaitingConfig
			sess.Draft = Draft{}
			return sess, []Outgoing{configPrompt()}, false
		}

	case StepAwaitingConfig:
		if ev.Kind == EventSelectConfig && isKnownConfig(ev.Text) {
			sess.Draft.Config = ev.Text
			sess.Step = StepAwaitingOrgDept
			return sess, []Outgoing{orgDeptPrompt()}, false
		}

	case StepAwaitingOrgDept:
		if ev.Kind == EventText && strings.TrimSpace(ev.Text) != "" {
			sess.Draft.OrgDept = ev.Text
			sess.Step = StepAwaitingName
			return sess, []Outgoing{namePrompt()}, false
		}

	case StepAwaitingName:
		if ev.Kind == EventText && strings.TrimSpace(ev.Text) != "" {
			sess.Draft.Name = ev.Text
			sess.Step = StepAwaitingPhone
			return sess, []Outgoing{phonePrompt()}, false
		}

	case StepAwaitingPhone:
		// Any string passes verbatim, no format validation.
		if ev.Kind == EventText || ev.Kind == EventContact {
			sess.Draft.Phone = ev.Text
			sess.Step = StepAwaitingDescription
			sess.Draft.Description = ""
			sess.Draft.Attachments = nil
			return sess, []Outgoing{descriptionPrompt(0)}, false
		}

	case StepAwaitingDescription:
		switch ev.Kind {
		case EventText:
			if strings.EqualFold(strings.TrimSpace(ev.Text), skipSentinel) {
				// The sentinel only finalizes; typed text and attachment
				// placeholders already gathered stay in the description.
				if strings.TrimSpace(sess.Draft.Description) == "" {
					sess.Draft.Description = noDescription
				}
				return sess, nil, true
			}
			sess.Draft.Description += ev.Text + "\n"
			return sess, []Outgoing{textAddedPrompt(len(sess.Draft.Attachments))}, false

		case EventAttachment:
			if ev.Attachment == nil {
				return sess, nil, false
			}
			if len(sess.Draft.Attachments) >= MaxAttachments {
				return sess, []Outgoing{attachmentLimitNotice()}, false
			}
			sess.Draft.Attachments = append(sess.Draft.Attachments, *ev.Attachment)
			sess.Draft.Description += ev.Attachment.placeholderLine() + "\n"
			return sess, []Outgoing{descriptionPrompt(len(sess.Draft.Attachments))}, false

		case EventFinish:
			if strings.TrimSpace(sess.Draft.Description) == "" {
				sess.Draft.Description = noDescription
			}
			return sess, nil, true
		}
	}

	return sess, nil, false
}

// --- Prompts ---

func cancelButton() Button {
	return Button{Text: "Назад ⬅️", ActionID: actionCancel}
}

func finishRow() []Button {
	return []Button{{Text: "Завершить заявку ✅", ActionID: actionFinish}}
}

func configPrompt() Outgoing {
	keyboard := make([][]Button, 0, len(configOptions)+1)
	for _, c := range configOptions {
		keyboard = append(keyboard, []Button{{Text: c, ActionID: actionSelectConfig, Value: c}})
	}
	keyboard = append(keyboard, []Button{cancelButton()})
	return Outgoing{Text: "Выберите конфигурацию: ⬇️", Keyboard: keyboard}
}

func orgDeptPrompt() Outgoing {
	return Outgoing{
		Text:     "🛑 Укажите наименование организации и отдел (например, ООО Ромашка, IT-отдел): 🏢",
		Keyboard: [][]Button{{cancelButton()}},
	}
}

func namePrompt() Outgoing {
	return Outgoing{
		Text:     "Укажите ваше ФИО: 👤",
		Keyboard: [][]Button{{cancelButton()}},
	}
}

func phonePrompt() Outgoing {
	return Outgoing{
		Text: "🛑 Укажите ваш номер телефона (в любом формате, например, +79991234567, 8-999-123-45-67) " +
			"или поделитесь им: 📞",
		Keyboard: [][]Button{{cancelButton()}},
	}
}

func descriptionPrompt(added int) Outgoing {
	return Outgoing{
		Text: fmt.Sprintf(
			"Опишите проблему текстом или отправьте до %d вложений (фото, видео, документы).\n"+
				"Уже добавлено: %d из %d. Когда закончите, нажмите 'Завершить заявку'. ✍️",
			MaxAttachments-added, added, MaxAttachments),
		Keyboard: [][]Button{finishRow(), {cancelButton()}},
		Replace:  true,
	}
}

func textAddedPrompt(added int) Outgoing {
	return Outgoing{
		Text: fmt.Sprintf("Текст добавлен. Можете отправить до %d вложений или завершить заявку.",
			MaxAttachments-added),
		Keyboard: [][]Button{finishRow(), {cancelButton()}},
		Replace:  true,
	}
}

func attachmentLimitNotice() Outgoing {
	return Outgoing{
		Text: fmt.Sprintf("Вы уже отправили максимум %d вложений. Нажмите 'Завершить заявку' или начните заново.",
			MaxAttachments),
		Keyboard: [][]Button{finishRow(), {cancelButton()}},
		Replace:  true,
	}
}

// --- Session store ---

// SessionStore holds one conversation state per active user, in memory
// only. Each user gets a mailbox goroutine, so work for the same user
// runs in arrival order without interleaving while distinct users
// proceed concurrently. Do must be called from a single dispatching
// goroutine to preserve that arrival order.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	sess  Session
	queue chan func()
}

func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]*sessionEntry)}
}

// Do enqueues fn to run with exclusive access to the user's session.
func (s *SessionStore) Do(userID string, fn func(sess *Session)) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		e = &sessionEntry{
			sess:  Session{UserID: userID},
			queue: make(chan func(), 64),
		}
		s.entries[userID] = e
		go func() {
			for queued := range e.queue {
				queued()
			}
		}()
	}
	s.mu.Unlock()

	e.queue <- func() { fn(&e.sess) }
}

// Snapshot returns a copy of the user's current session, creating an
// Idle one if none exists. Used by tests and diagnostics.
func (s *SessionStore) Snapshot(userID string) Session {
	done := make(chan Session, 1)
	s.Do(userID, func(sess *Session) { done <- *sess })
	return <-done
}

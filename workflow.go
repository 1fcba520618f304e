package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
)

var (
	ErrNotAuthorized     = errors.New("actor is not an administrator")
	ErrUnknownTicket     = errors.New("ticket not found")
	ErrIllegalTransition = errors.New("status can only move forward")
)

// TransitionTicket moves a ticket strictly forward through
// Принято → В работе → Решено. The actor must be on the admin
// allow-list. Storage is written first; the owner notification and, on
// resolution, the rating prompt follow and never roll the write back.
func TransitionTicket(db *sql.DB, n Notifier, cfg Config, ticketID int64, to TicketStatus, actorID string) error {
	admin, err := IsAdmin(db, actorID)
	if err != nil {
		return fmt.Errorf("admin lookup: %w", err)
	}
	if !admin {
		return ErrNotAuthorized
	}

	t, err := GetTicketByID(db, ticketID)
	if err == sql.ErrNoRows {
		return ErrUnknownTicket
	}
	if err != nil {
		return fmt.Errorf("ticket lookup: %w", err)
	}
	if !t.Status.CanTransitionTo(to) {
		return ErrIllegalTransition
	}

	if err := SetTicketStatus(db, ticketID, to); err != nil {
		return fmt.Errorf("status update: %w", err)
	}
	log.Printf("transition ticket=%d from=%s to=%s actor=%s", ticketID, t.Status, to, actorID)

	// Notification failures after a successful write are logged only.
	statusMsg := Outgoing{Text: fmt.Sprintf("Статус вашей заявки #%d обновлён: %s 🚀", ticketID, to)}
	if _, err := n.Send(t.UserID, statusMsg); err != nil {
		log.Printf("transition notify error ticket=%d user=%s: %v", ticketID, t.UserID, err)
	}

	if to == StatusResolved {
		RequestRating(n, ticketID, t.UserID, cfg.PromptTTL())
	}
	return nil
}

// SubmitTicket persists a completed draft and hands the new ticket off
// to the admin notification path. On storage failure nothing is sent
// and the caller keeps the draft for a retry.
func SubmitTicket(db *sql.DB, n Notifier, cfg Config, userID string, d Draft) (Ticket, error) {
	t := Ticket{
		UserID:      userID,
		Config:      d.Config,
		OrgDept:     d.OrgDept,
		Name:        d.Name,
		Phone:       d.Phone,
		Description: strings.TrimSpace(d.Description),
		Status:      StatusAccepted,
	}
	if t.Description == "" {
		t.Description = noDescription
	}

	id, err := CreateTicket(db, t)
	if err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	t.ID = id
	log.Printf("ticket created id=%d user=%s config=%s attachments=%d", id, userID, t.Config, len(d.Attachments))

	// Admin mail (with triage hint and attachment download) can be slow;
	// run it off the user's mailbox. Failures are logged, never surfaced.
	atts := append([]Attachment(nil), d.Attachments...)
	go NotifyAdminsOfTicket(cfg, n, t, atts)

	return t, nil
}

func submitConfirmation(t Ticket) Outgoing {
	return Outgoing{
		Text: fmt.Sprintf(
			"Заявка #%d принята! ✅\n"+
				"Конфигурация: %s 💻\n"+
				"Организация и отдел: %s 🏢\n"+
				"Имя: %s 👤\n"+
				"Номер телефона: %s 📞\n"+
				"Описание: %s ✍️\n"+
				"Заявка будет обработана в ближайшее время! ⏳",
			t.ID, t.Config, t.OrgDept, t.Name, t.Phone, t.Description),
		Replace: true,
	}
}

func storageFailureNotice() Outgoing {
	return Outgoing{
		Text:     "Не удалось сохранить заявку. Попробуйте ещё раз: отправьте текст или нажмите 'Завершить заявку'.",
		Keyboard: [][]Button{finishRow(), {cancelButton()}},
	}
}

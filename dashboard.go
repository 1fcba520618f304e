package main

import (
	"database/sql"
	"fmt"
	"strings"
)

// BuildDashboard renders the three triage queues from repository reads.
// It is a pure read: a refresh has no side effects beyond the queries.
func BuildDashboard(db *sql.DB) (Outgoing, error) {
	accepted, err := GetTicketsByStatus(db, StatusAccepted)
	if err != nil {
		return Outgoing{}, fmt.Errorf("load accepted: %w", err)
	}
	inProgress, err := GetTicketsByStatus(db, StatusInProgress)
	if err != nil {
		return Outgoing{}, fmt.Errorf("load in-progress: %w", err)
	}
	resolved, err := GetTicketsByStatus(db, StatusResolved)
	if err != nil {
		return Outgoing{}, fmt.Errorf("load resolved: %w", err)
	}

	var b strings.Builder
	var keyboard [][]Button

	writeQueue(&b, "📥 Новые заявки:", accepted, nil)
	for _, t := range accepted {
		keyboard = append(keyboard, []Button{
			transitionButton(t.ID, StatusInProgress),
			transitionButton(t.ID, StatusResolved),
		})
	}

	b.WriteString("\n")
	writeQueue(&b, "📋 Заявки в работе:", inProgress, nil)
	for _, t := range inProgress {
		keyboard = append(keyboard, []Button{transitionButton(t.ID, StatusResolved)})
	}

	b.WriteString("\n")
	ratings := make(map[int64]string, len(resolved))
	for _, t := range resolved {
		rating, ok, err := GetFeedback(db, t.ID)
		if err != nil {
			return Outgoing{}, fmt.Errorf("load feedback ticket=%d: %w", t.ID, err)
		}
		if ok {
			ratings[t.ID] = fmt.Sprintf("Оценка: %d/5", rating)
		} else {
			ratings[t.ID] = "Оценка: не оставлена"
		}
	}
	writeQueue(&b, "✅ Решённые заявки:", resolved, ratings)

	keyboard = append(keyboard, []Button{{Text: "Обновить 🔄", ActionID: actionAdminPanel}})

	return Outgoing{Text: b.String(), Keyboard: keyboard}, nil
}

func writeQueue(b *strings.Builder, header string, tickets []Ticket, annotations map[int64]string) {
	if len(tickets) == 0 {
		b.WriteString(header + " отсутствуют\n")
		return
	}
	b.WriteString(header + "\n")
	for i, t := range tickets {
		fmt.Fprintf(b, "%d. #%d | %s\n   UserID: %s | Орг/Отдел: %s\n   Имя: %s | Телефон: %s\n   Описание: %s\n",
			i+1, t.ID, t.Config, t.UserID, t.OrgDept, t.Name, t.Phone, t.Description)
		if note, ok := annotations[t.ID]; ok {
			fmt.Fprintf(b, "   %s\n", note)
		}
	}
}

func transitionButton(ticketID int64, to TicketStatus) Button {
	return Button{
		Text:     fmt.Sprintf("#%d → %s", ticketID, to),
		ActionID: actionStatus,
		Value:    fmt.Sprintf("%d:%s", ticketID, to),
	}
}

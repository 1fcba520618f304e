package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

var ratingLabels = map[int]string{
	5: "Отлично",
	4: "Хорошо",
	3: "Нормально",
	2: "Плохо",
	1: "Ужасно",
}

var ratingEmoji = map[int]string{
	5: "👍",
	4: "👌",
	3: "🤔",
	2: "👎",
	1: "😞",
}

// RequestRating sends the 1-5 rating prompt to the ticket owner and
// schedules a best-effort removal of the prompt after ttl. The removal
// does not cancel the rating opportunity: a late click on the buttons
// of an already deleted message simply never arrives, but a rating
// submitted through any still-visible prompt is accepted.
func RequestRating(n Notifier, ticketID int64, userID string, ttl time.Duration) {
	keyboard := make([][]Button, 0, 5)
	for rating := 5; rating >= 1; rating-- {
		keyboard = append(keyboard, []Button{{
			Text:     fmt.Sprintf("%s %s (%d/5)", ratingLabels[rating], ratingEmoji[rating], rating),
			ActionID: actionRate,
			Value:    fmt.Sprintf("%d:%d", ticketID, rating),
		}})
	}
	out := Outgoing{
		Text:     fmt.Sprintf("Пожалуйста, оцените качество поддержки по заявке #%d:", ticketID),
		Keyboard: keyboard,
	}
	sendExpiring(n, userID, out, ttl)
	log.Printf("rating requested ticket=%d user=%s ttl=%s", ticketID, userID, ttl)
}

// SubmitRating validates and upserts a rating, returning the
// acknowledgement text. Out-of-range ratings fail without touching
// storage.
func SubmitRating(db *sql.DB, ticketID int64, rating int) (string, error) {
	if rating < 1 || rating > 5 {
		return "", fmt.Errorf("рейтинг вне диапазона: %d", rating)
	}
	if err := UpsertFeedback(db, ticketID, rating); err != nil {
		return "", fmt.Errorf("save feedback: %w", err)
	}
	log.Printf("feedback saved ticket=%d rating=%d", ticketID, rating)
	return fmt.Sprintf("Спасибо за ваш отзыв: %s (%d/5)! 🙌", ratingLabels[rating], rating), nil
}

// sendExpiring delivers a message and schedules its deletion after ttl.
// Both the send failure and the delete failure (the message may already
// be gone) are logged and swallowed.
func sendExpiring(n Notifier, userID string, out Outgoing, ttl time.Duration) {
	ref, err := n.Send(userID, out)
	if err != nil {
		log.Printf("expiring send error user=%s: %v", userID, err)
		return
	}
	n.Schedule(ttl, func() {
		if err := n.Delete(ref); err != nil {
			log.Printf("expiring delete error channel=%s ts=%s: %v", ref.Channel, ref.Timestamp, err)
		}
	})
}

package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartReminderScheduler periodically DMs every admin a digest of
// tickets still waiting in Принято. The schedule is a standard 5-field
// cron expression (minute hour day-of-month month day-of-week), e.g.
// "0 9 * * 1-5" for weekdays at 9am. Empty disables the scheduler.
func StartReminderScheduler(cfg Config, db *sql.DB, n Notifier) {
	schedule := strings.TrimSpace(cfg.ReminderSchedule)
	if schedule == "" {
		log.Println("Reminder digest disabled (reminder_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid reminder_schedule '%s': %v, reminder digest disabled", schedule, err)
		return
	}
	log.Printf("Reminder digest scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			log.Printf("Next reminder digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(now).Round(time.Minute))

			time.Sleep(next.Sub(now))
			SendReminderDigest(db, n)
		}
	}()
}

// SendReminderDigest sends the digest once. Delivery failures for
// individual admins are logged and do not stop the fan-out.
func SendReminderDigest(db *sql.DB, n Notifier) {
	accepted, err := GetTicketsByStatus(db, StatusAccepted)
	if err != nil {
		log.Printf("reminder digest load error: %v", err)
		return
	}
	if len(accepted) == 0 {
		log.Println("reminder digest: no waiting tickets")
		return
	}

	admins, err := GetAdmins(db)
	if err != nil {
		log.Printf("reminder digest admin lookup error: %v", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Необработанные заявки (%d):\n", len(accepted))
	for i, t := range accepted {
		fmt.Fprintf(&b, "%d. #%d | %s | %s — %s\n", i+1, t.ID, t.Config, t.Name, t.Description)
	}
	out := Outgoing{Text: b.String()}

	for _, admin := range admins {
		if _, err := n.Send(admin, out); err != nil {
			log.Printf("reminder digest send error admin=%s: %v", admin, err)
		}
	}
	log.Printf("reminder digest sent tickets=%d admins=%d", len(accepted), len(admins))
}

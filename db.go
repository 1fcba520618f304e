package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL,
		config      TEXT NOT NULL,
		org_dept    TEXT DEFAULT '',
		name        TEXT DEFAULT '',
		phone       TEXT DEFAULT '',
		description TEXT DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'Принято',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);

	CREATE TABLE IF NOT EXISTS admins (
		user_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS feedback (
		ticket_id INTEGER PRIMARY KEY REFERENCES tickets(id),
		rating    INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateTicket inserts the ticket and returns the assigned id. Status
// defaults to Принято when unset.
func CreateTicket(db *sql.DB, t Ticket) (int64, error) {
	status := t.Status
	if status == "" {
		status = StatusAccepted
	}
	res, err := db.Exec(
		`INSERT INTO tickets (user_id, config, org_dept, name, phone, description, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Config, t.OrgDept, t.Name, t.Phone, t.Description, string(status),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetTicketByID(db *sql.DB, id int64) (Ticket, error) {
	var t Ticket
	var status string
	err := db.QueryRow(
		`SELECT id, user_id, config, org_dept, name, phone, description, status, created_at
		 FROM tickets WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.UserID, &t.Config, &t.OrgDept, &t.Name, &t.Phone, &t.Description, &status, &t.CreatedAt)
	t.Status = TicketStatus(status)
	return t, err
}

func SetTicketStatus(db *sql.DB, id int64, status TicketStatus) error {
	_, err := db.Exec(`UPDATE tickets SET status = ? WHERE id = ?`, string(status), id)
	return err
}

func GetTicketsByStatus(db *sql.DB, status TicketStatus) ([]Ticket, error) {
	rows, err := db.Query(
		`SELECT id, user_id, config, org_dept, name, phone, description, status, created_at
		 FROM tickets WHERE status = ? ORDER BY id`,
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		var s string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Config, &t.OrgDept, &t.Name, &t.Phone, &t.Description, &s, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = TicketStatus(s)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpsertFeedback keeps at most one rating per ticket; a later submission
// overwrites the rating in place.
func UpsertFeedback(db *sql.DB, ticketID int64, rating int) error {
	_, err := db.Exec(
		`INSERT INTO feedback (ticket_id, rating) VALUES (?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET rating = excluded.rating`,
		ticketID, rating,
	)
	return err
}

func GetFeedback(db *sql.DB, ticketID int64) (int, bool, error) {
	var rating int
	err := db.QueryRow(`SELECT rating FROM feedback WHERE ticket_id = ?`, ticketID).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rating, true, nil
}

func IsAdmin(db *sql.DB, userID string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM admins WHERE user_id = ?`, userID).Scan(&count)
	return count > 0, err
}

func AddAdmin(db *sql.DB, userID string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO admins (user_id) VALUES (?)`, userID)
	return err
}

func GetAdmins(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM admins ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		admins = append(admins, id)
	}
	return admins, rows.Err()
}

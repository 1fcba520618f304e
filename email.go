package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// NotifyAdminsOfTicket delivers the new-ticket notification to the
// admin inbox: field summary, optional triage hint, and up to
// MaxAttachments files fetched from the chat transport. Every failure
// here is logged and swallowed; the ticket is already persisted and the
// user already confirmed.
func NotifyAdminsOfTicket(cfg Config, n Notifier, t Ticket, attachments []Attachment) {
	hint := ""
	if cfg.AnthropicAPIKey != "" {
		h, err := TriageTicket(cfg, t)
		if err != nil {
			log.Printf("triage error ticket=%d: %v", t.ID, err)
		} else {
			hint = h.Line()
		}
	}

	if !cfg.MailConfigured() {
		log.Printf("admin mail skipped (not configured) ticket=%d", t.ID)
		return
	}

	var files []mailAttachment
	for _, a := range attachments {
		var buf bytes.Buffer
		if err := n.FetchFile(a.Ref, &buf); err != nil {
			log.Printf("attachment fetch error ticket=%d name=%s: %v", t.ID, a.Name, err)
			continue
		}
		files = append(files, mailAttachment{Name: a.Name, Data: buf.Bytes()})
	}

	msg, err := buildTicketMail(cfg, t, hint, files)
	if err != nil {
		log.Printf("mail build error ticket=%d: %v", t.ID, err)
		return
	}

	addr := fmt.Sprintf("%s:%d", cfg.EmailHost, cfg.EmailPort)
	auth := smtp.PlainAuth("", cfg.EmailUser, cfg.EmailPass, cfg.EmailHost)
	if err := smtp.SendMail(addr, auth, cfg.EmailUser, []string{cfg.AdminEmail}, msg); err != nil {
		log.Printf("mail send error ticket=%d host=%s: %v", t.ID, cfg.EmailHost, err)
		return
	}
	log.Printf("admin mail sent ticket=%d to=%s attachments=%d", t.ID, cfg.AdminEmail, len(files))
}

type mailAttachment struct {
	Name string
	Data []byte
}

func buildTicketMail(cfg Config, t Ticket, hint string, files []mailAttachment) ([]byte, error) {
	subject := fmt.Sprintf("Новая заявка #%d в техподдержку", t.ID)
	body := fmt.Sprintf(
		"Новая заявка #%d:\n"+
			"Конфигурация: %s\n"+
			"Организация и отдел: %s\n"+
			"Имя: %s\n"+
			"Номер телефона: %s\n"+
			"Описание: %s\n"+
			"Статус: %s\n",
		t.ID, t.Config, t.OrgDept, t.Name, t.Phone, t.Description, t.Status)
	if hint != "" {
		body += hint + "\n"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", cfg.EmailUser)
	fmt.Fprintf(&buf, "To: %s\r\n", cfg.AdminEmail)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/octet-stream")
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(f.Data)
		// RFC 2045 line length limit.
		for len(encoded) > 76 {
			if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
				return nil, err
			}
			encoded = encoded[76:]
		}
		if _, err := part.Write([]byte(encoded + "\r\n")); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package main

import (
	"strings"
	"sync"
	"testing"
)

func step(t *testing.T, sess Session, ev Event) (Session, []Outgoing) {
	t.Helper()
	next, outs, ready := Advance(sess, ev)
	if ready {
		t.Fatalf("unexpected submit at step %d for event %+v", sess.Step, ev)
	}
	return next, outs
}

func TestTicketFlowWithTextDescription(t *testing.T) {
	sess := Session{UserID: "U1"}

	sess, outs := step(t, sess, Event{Kind: EventBegin})
	if sess.Step != StepAwaitingConfig {
		t.Fatalf("step = %d, want AwaitingConfig", sess.Step)
	}
	if len(outs) != 1 || len(outs[0].Keyboard) != len(configOptions)+1 {
		t.Fatalf("config prompt keyboard rows = %d, want one per option plus cancel", len(outs[0].Keyboard))
	}

	sess, outs = step(t, sess, Event{Kind: EventSelectConfig, Text: "ЗУП"})
	if sess.Step != StepAwaitingOrgDept || sess.Draft.Config != "ЗУП" {
		t.Fatalf("after config select: step=%d config=%q", sess.Step, sess.Draft.Config)
	}
	if len(outs) != 1 || !strings.Contains(outs[0].Text, "организации") {
		t.Fatalf("expected org/dept prompt, got %+v", outs)
	}

	sess, _ = step(t, sess, Event{Kind: EventText, Text: "ООО Ромашка, IT-отдел"})
	if sess.Step != StepAwaitingName {
		t.Fatalf("step = %d, want AwaitingName", sess.Step)
	}

	sess, _ = step(t, sess, Event{Kind: EventText, Text: "Иванов Иван Иванович"})
	if sess.Step != StepAwaitingPhone {
		t.Fatalf("step = %d, want AwaitingPhone", sess.Step)
	}

	sess, outs = step(t, sess, Event{Kind: EventText, Text: "+7 (999) 123-45-67"})
	if sess.Step != StepAwaitingDescription {
		t.Fatalf("step = %d, want AwaitingDescription", sess.Step)
	}
	if sess.Draft.Phone != "+7 (999) 123-45-67" {
		t.Errorf("phone stored = %q, want verbatim input", sess.Draft.Phone)
	}
	if len(outs) != 1 || !outs[0].Replace {
		t.Fatalf("description prompt must replace the progress message: %+v", outs)
	}

	sess, _ = step(t, sess, Event{Kind: EventText, Text: "Не начисляется зарплата"})
	sess, _ = step(t, sess, Event{Kind: EventText, Text: "Ошибка в документе"})

	next, outs, ready := Advance(sess, Event{Kind: EventFinish})
	if !ready {
		t.Fatal("finish did not mark the draft ready")
	}
	if len(outs) != 0 {
		t.Errorf("finish emitted %d messages, want none (caller sends confirmation)", len(outs))
	}
	want := "Не начисляется зарплата\nОшибка в документе\n"
	if next.Draft.Description != want {
		t.Errorf("description = %q, want %q", next.Draft.Description, want)
	}
}

func TestSkipSentinelKeepsTypedText(t *testing.T) {
	sess := Session{UserID: "U1"}
	sess, _, _ = Advance(sess, Event{Kind: EventBegin})
	sess, _, _ = Advance(sess, Event{Kind: EventSelectConfig, Text: "ЗУП"})
	sess, _, _ = Advance(sess, Event{Kind: EventText, Text: "ООО Ромашка, IT-отдел"})
	sess, _, _ = Advance(sess, Event{Kind: EventText, Text: "Иванов Иван"})
	sess, _, _ = Advance(sess, Event{Kind: EventText, Text: "+79991234567"})
	sess, _ = step(t, sess, Event{Kind: EventText, Text: "принтер не печатает"})

	next, _, ready := Advance(sess, Event{Kind: EventText, Text: "нет"})
	if !ready {
		t.Fatal("sentinel did not finish the description step")
	}
	if !strings.Contains(next.Draft.Description, "принтер не печатает") {
		t.Errorf("description = %q, typed text must survive the sentinel", next.Draft.Description)
	}
	if strings.Contains(next.Draft.Description, noDescription) {
		t.Errorf("description = %q, placeholder must not replace typed text", next.Draft.Description)
	}
}

func TestDescriptionSkipSentinel(t *testing.T) {
	sess := Session{UserID: "U1", Step: StepAwaitingDescription, Draft: Draft{Config: "УТ"}}

	for _, text := range []string{"нет", "НЕТ", " Нет "} {
		next, outs, ready := Advance(sess, Event{Kind: EventText, Text: text})
		if !ready {
			t.Fatalf("%q did not finish the description step", text)
		}
		if len(outs) != 0 {
			t.Errorf("%q emitted %d messages", text, len(outs))
		}
		if next.Draft.Description != noDescription {
			t.Errorf("%q: description = %q, want %q", text, next.Draft.Description, noDescription)
		}
	}
}

func TestSkipSentinelKeepsAttachmentPlaceholders(t *testing.T) {
	sess := Session{UserID: "U1", Step: StepAwaitingDescription}
	att := Attachment{Kind: AttachmentPhoto, Ref: "https://files/1", Name: "screen.png"}

	sess, _, _ = Advance(sess, Event{Kind: EventAttachment, Attachment: &att})
	next, _, ready := Advance(sess, Event{Kind: EventText, Text: "нет"})
	if !ready {
		t.Fatal("sentinel did not finish the step")
	}
	if next.Draft.Description != "Прикреплённое фото\n" {
		t.Errorf("description = %q, placeholder must survive the sentinel", next.Draft.Description)
	}
}

func TestFinishWithEmptyDescription(t *testing.T) {
	sess := Session{UserID: "U1", Step: StepAwaitingDescription}

	next, _, ready := Advance(sess, Event{Kind: EventFinish})
	if !ready {
		t.Fatal("finish did not mark the draft ready")
	}
	if next.Draft.Description != noDescription {
		t.Errorf("description = %q, want %q", next.Draft.Description, noDescription)
	}
}

func TestAttachmentBudget(t *testing.T) {
	sess := Session{UserID: "U1", Step: StepAwaitingDescription}

	for i := 0; i < MaxAttachments; i++ {
		att := Attachment{Kind: AttachmentDocument, Ref: "ref", Name: "doc.pdf"}
		var outs []Outgoing
		sess, outs = step(t, sess, Event{Kind: EventAttachment, Attachment: &att})
		if len(outs) != 1 {
			t.Fatalf("attachment %d produced %d messages", i+1, len(outs))
		}
	}
	if len(sess.Draft.Attachments) != MaxAttachments {
		t.Fatalf("stored attachments = %d, want %d", len(sess.Draft.Attachments), MaxAttachments)
	}

	extra := Attachment{Kind: AttachmentPhoto, Ref: "ref4", Name: "extra.png"}
	next, outs, ready := Advance(sess, Event{Kind: EventAttachment, Attachment: &extra})
	if ready {
		t.Fatal("over-budget attachment must not submit")
	}
	if len(next.Draft.Attachments) != MaxAttachments {
		t.Errorf("over-budget attachment was stored: %d", len(next.Draft.Attachments))
	}
	if len(outs) != 1 || !strings.Contains(outs[0].Text, "максимум") {
		t.Errorf("expected limit notice, got %+v", outs)
	}

	// Description keeps one placeholder per accepted attachment only.
	if got := strings.Count(next.Draft.Description, "Прикреплённый документ"); got != MaxAttachments {
		t.Errorf("placeholder lines = %d, want %d", got, MaxAttachments)
	}
}

func TestCancelResetsFromEveryStep(t *testing.T) {
	steps := []Step{StepAwaitingConfig, StepAwaitingOrgDept, StepAwaitingName, StepAwaitingPhone, StepAwaitingDescription}
	for _, s := range steps {
		sess := Session{UserID: "U1", Step: s, Draft: Draft{Config: "ЗУП", Description: "partial"}}
		next, outs, ready := Advance(sess, Event{Kind: EventCancel})
		if ready || len(outs) != 0 {
			t.Fatalf("cancel at step %d: ready=%v outs=%d", s, ready, len(outs))
		}
		if next.Step != StepIdle || !draftEmpty(next.Draft) {
			t.Errorf("cancel at step %d did not reset: %+v", s, next)
		}
	}

	// Cancel at idle is a no-op.
	next, _, _ := Advance(Session{UserID: "U1"}, Event{Kind: EventCancel})
	if next.Step != StepIdle || !draftEmpty(next.Draft) {
		t.Errorf("cancel at idle changed the session: %+v", next)
	}
}

func TestIgnoredEventsLeaveSessionUnchanged(t *testing.T) {
	att := Attachment{Kind: AttachmentPhoto, Ref: "ref"}
	cases := []struct {
		name string
		sess Session
		ev   Event
	}{
		{"text at idle", Session{UserID: "U1"}, Event{Kind: EventText, Text: "привет"}},
		{"attachment at idle", Session{UserID: "U1"}, Event{Kind: EventAttachment, Attachment: &att}},
		{"free text at config step", Session{UserID: "U1", Step: StepAwaitingConfig}, Event{Kind: EventText, Text: "ЗУП"}},
		{"unknown config value", Session{UserID: "U1", Step: StepAwaitingConfig}, Event{Kind: EventSelectConfig, Text: "Неизвестная"}},
		{"attachment at name step", Session{UserID: "U1", Step: StepAwaitingName}, Event{Kind: EventAttachment, Attachment: &att}},
		{"finish at phone step", Session{UserID: "U1", Step: StepAwaitingPhone}, Event{Kind: EventFinish}},
		{"blank org/dept", Session{UserID: "U1", Step: StepAwaitingOrgDept}, Event{Kind: EventText, Text: "   "}},
		{"begin mid-flow", Session{UserID: "U1", Step: StepAwaitingName}, Event{Kind: EventBegin}},
	}
	for _, tc := range cases {
		next, outs, ready := Advance(tc.sess, tc.ev)
		if ready || len(outs) != 0 {
			t.Errorf("%s: ready=%v outs=%d, want ignored", tc.name, ready, len(outs))
		}
		if next.Step != tc.sess.Step {
			t.Errorf("%s: step changed %d -> %d", tc.name, tc.sess.Step, next.Step)
		}
	}
}

func TestContactSharesPhone(t *testing.T) {
	sess := Session{UserID: "U1", Step: StepAwaitingPhone}
	next, _, _ := Advance(sess, Event{Kind: EventContact, Text: "+79990000000"})
	if next.Step != StepAwaitingDescription || next.Draft.Phone != "+79990000000" {
		t.Errorf("shared contact not accepted: %+v", next)
	}
}

func TestBeginDiscardsPreviousDraft(t *testing.T) {
	sess := Session{UserID: "U1"}
	sess, _, _ = Advance(sess, Event{Kind: EventBegin})
	sess, _, _ = Advance(sess, Event{Kind: EventSelectConfig, Text: "УНФ"})
	sess, _, _ = Advance(sess, Event{Kind: EventCancel})

	sess, _, _ = Advance(sess, Event{Kind: EventBegin})
	if !draftEmpty(sess.Draft) {
		t.Errorf("restart kept old draft: %+v", sess.Draft)
	}
}

func draftEmpty(d Draft) bool {
	return d.Config == "" && d.OrgDept == "" && d.Name == "" &&
		d.Phone == "" && d.Description == "" && len(d.Attachments) == 0
}

func TestSessionStoreSerializesPerUser(t *testing.T) {
	store := NewSessionStore()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		store.Do("U1", func(sess *Session) {
			defer wg.Done()
			// Unsynchronized read-modify-write; only safe if the store
			// serializes work for the same user.
			sess.Draft.Description += "x"
		})
	}
	wg.Wait()

	got := store.Snapshot("U1")
	if len(got.Draft.Description) != n {
		t.Errorf("description length = %d, want %d", len(got.Draft.Description), n)
	}
}

func TestSessionStoreIsolatesUsers(t *testing.T) {
	store := NewSessionStore()

	store.Do("U1", func(sess *Session) { sess.Step = StepAwaitingDescription })
	store.Do("U2", func(sess *Session) { sess.Step = StepAwaitingConfig })

	if got := store.Snapshot("U1").Step; got != StepAwaitingDescription {
		t.Errorf("U1 step = %d", got)
	}
	if got := store.Snapshot("U2").Step; got != StepAwaitingConfig {
		t.Errorf("U2 step = %d", got)
	}
	if got := store.Snapshot("U3").Step; got != StepIdle {
		t.Errorf("fresh user step = %d, want idle", got)
	}
}

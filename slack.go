package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	actionBegin        = "ticket_begin"
	actionHelp         = "ticket_help"
	actionCancel       = "ticket_cancel"
	actionFinish       = "ticket_finish"
	actionSelectConfig = "ticket_config"
	actionAdminPanel   = "admin_panel"
	actionStatus       = "ticket_status"
	actionRate         = "ticket_rate"
)

// Bot wires the conversation machine, the workflow controller and the
// repository to the Slack transport.
type Bot struct {
	api   *slack.Client
	db    *sql.DB
	cfg   Config
	n     Notifier
	store *SessionStore
}

func StartSlackBot(cfg Config, db *sql.DB, api *slack.Client, n Notifier) error {
	client := socketmode.New(api)
	bot := &Bot{api: api, db: db, cfg: cfg, n: n, store: NewSessionStore()}

	go func() {
		// Handlers are invoked synchronously here: session work is only
		// enqueued into the per-user mailbox, and the enqueue order from
		// this single loop is what keeps each user's events in arrival
		// order.
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s", cmd.Command, cmd.UserID)
				bot.handleSlashCommand(cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				event, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				bot.handleEventsAPI(event)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				cb, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				bot.handleInteraction(cb)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func (b *Bot) handleSlashCommand(cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/start", "/support":
		go b.send(cmd.UserID, welcomeMessage(b.db, cmd.UserID))
	}
}

func (b *Bot) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		b.handleMessage(ev)
	case *slackevents.FileSharedEvent:
		b.handleFileShared(ev)
	}
}

func (b *Bot) handleMessage(ev *slackevents.MessageEvent) {
	// Uploads arrive as file_shared events; the accompanying message has
	// subtype file_share and is skipped here, so each file is consumed
	// exactly once.
	if ev.ChannelType != "im" || ev.BotID != "" || ev.User == "" || ev.SubType != "" {
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	// Phone numbers are taken verbatim, so the raw text goes through.
	b.applyEvent(ev.User, Event{Kind: EventText, Text: ev.Text})
}

// handleFileShared turns a DM file upload into an attachment event. The
// event only carries the file ID; metadata (mimetype, name, download
// URL) comes from a files.info lookup, done inside the user's mailbox so
// it cannot reorder against the user's other events.
func (b *Bot) handleFileShared(ev *slackevents.FileSharedEvent) {
	// DM channel IDs start with D; uploads anywhere else are not ours.
	if ev.UserID == "" || !strings.HasPrefix(ev.ChannelID, "D") {
		return
	}
	b.store.Do(ev.UserID, func(sess *Session) {
		if sess.Step != StepAwaitingDescription {
			// The machine would ignore the attachment anyway; skip the
			// files.info round-trip.
			return
		}
		info, _, _, err := b.api.GetFileInfo(ev.FileID, 0, 0)
		if err != nil {
			log.Printf("file info error file=%s user=%s: %v", ev.FileID, ev.UserID, err)
			return
		}
		att := classifyFile(*info)
		b.runEvent(sess, Event{Kind: EventAttachment, Attachment: &att})
	})
}

func classifyFile(f slack.File) Attachment {
	kind := AttachmentDocument
	switch {
	case strings.HasPrefix(f.Mimetype, "image/"):
		kind = AttachmentPhoto
	case strings.HasPrefix(f.Mimetype, "video/"):
		kind = AttachmentVideo
	case strings.HasPrefix(f.Mimetype, "audio/"):
		kind = AttachmentAudio
	}
	name := f.Name
	if name == "" {
		name = f.ID
	}
	return Attachment{Kind: kind, Ref: f.URLPrivateDownload, Name: name}
}

func (b *Bot) handleInteraction(cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions {
		return
	}
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	userID := cb.User.ID

	// Rendered action IDs carry a "/row_col" suffix for uniqueness
	// within a message; route on the base.
	actionID := act.ActionID
	if i := strings.Index(actionID, "/"); i >= 0 {
		actionID = actionID[:i]
	}

	switch actionID {
	case actionBegin:
		b.applyEvent(userID, Event{Kind: EventBegin})
	case actionHelp:
		go b.send(userID, helpMessage())
	case actionCancel:
		b.applyEvent(userID, Event{Kind: EventCancel})
	case actionSelectConfig:
		b.applyEvent(userID, Event{Kind: EventSelectConfig, Text: act.Value})
	case actionFinish:
		b.applyEvent(userID, Event{Kind: EventFinish})
	case actionAdminPanel:
		go b.showAdminPanel(userID)
	case actionStatus:
		go b.handleStatusAction(userID, act.Value)
	case actionRate:
		b.handleRateAction(cb, act.Value)
	}
}

// applyEvent runs one machine step inside the user's mailbox.
func (b *Bot) applyEvent(userID string, ev Event) {
	b.store.Do(userID, func(sess *Session) {
		b.runEvent(sess, ev)
	})
}

// runEvent advances the machine, delivers the composed messages, and
// submits when the draft is complete. Must run inside the user's
// mailbox.
func (b *Bot) runEvent(sess *Session, ev Event) {
	userID := sess.UserID
	next, outs, ready := Advance(*sess, ev)
	*sess = next
	for _, out := range outs {
		b.deliver(sess, out)
	}

	if ev.Kind == EventCancel {
		b.send(userID, welcomeMessage(b.db, userID))
		return
	}
	if !ready {
		return
	}

	t, err := SubmitTicket(b.db, b.n, b.cfg, userID, sess.Draft)
	if err != nil {
		// Draft stays intact at AwaitingDescription for a retry.
		log.Printf("submit error user=%s: %v", userID, err)
		b.deliver(sess, storageFailureNotice())
		return
	}
	b.deliver(sess, submitConfirmation(t))
	*sess = Session{UserID: userID}
	b.send(userID, welcomeMessage(b.db, userID))
}

// deliver sends one composed message, replacing the tracked progress
// prompt when asked to.
func (b *Bot) deliver(sess *Session, out Outgoing) {
	if out.Replace && sess.LastPrompt != (MessageRef{}) {
		if err := b.n.Delete(sess.LastPrompt); err != nil {
			log.Printf("prompt delete error user=%s: %v", sess.UserID, err)
		}
		sess.LastPrompt = MessageRef{}
	}
	ref, err := b.n.Send(sess.UserID, out)
	if err != nil {
		log.Printf("send error user=%s: %v", sess.UserID, err)
		return
	}
	if out.Replace {
		sess.LastPrompt = ref
	}
}

func (b *Bot) send(userID string, out Outgoing) {
	if _, err := b.n.Send(userID, out); err != nil {
		log.Printf("send error user=%s: %v", userID, err)
	}
}

func (b *Bot) showAdminPanel(userID string) {
	admin, err := IsAdmin(b.db, userID)
	if err != nil {
		log.Printf("admin panel auth error user=%s: %v", userID, err)
		return
	}
	if !admin {
		b.send(userID, Outgoing{Text: "Недостаточно прав."})
		return
	}
	view, err := BuildDashboard(b.db)
	if err != nil {
		log.Printf("admin panel build error user=%s: %v", userID, err)
		b.send(userID, Outgoing{Text: "Не удалось построить панель администратора."})
		return
	}
	b.send(userID, view)
}

func (b *Bot) handleStatusAction(userID, value string) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		log.Printf("malformed status action value=%q user=%s", value, userID)
		return
	}
	ticketID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		log.Printf("malformed status ticket id value=%q user=%s", value, userID)
		return
	}
	to, ok := ParseTicketStatus(parts[1])
	if !ok {
		log.Printf("unknown status value=%q user=%s", value, userID)
		return
	}

	err = TransitionTicket(b.db, b.n, b.cfg, ticketID, to, userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotAuthorized):
		b.send(userID, Outgoing{Text: "Недостаточно прав."})
		return
	case errors.Is(err, ErrUnknownTicket):
		b.send(userID, Outgoing{Text: fmt.Sprintf("Заявка #%d не найдена.", ticketID)})
	case errors.Is(err, ErrIllegalTransition):
		b.send(userID, Outgoing{Text: fmt.Sprintf("Недопустимый переход статуса для заявки #%d.", ticketID)})
	default:
		log.Printf("transition error ticket=%d user=%s: %v", ticketID, userID, err)
		b.send(userID, Outgoing{Text: "Не удалось обновить статус заявки."})
	}
	b.showAdminPanel(userID)
}

func (b *Bot) handleRateAction(cb slack.InteractionCallback, value string) {
	userID := cb.User.ID
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		log.Printf("malformed rate action value=%q user=%s", value, userID)
		go b.send(userID, Outgoing{Text: "Произошла ошибка при обработке отзыва. Попробуйте снова."})
		return
	}
	ticketID, idErr := strconv.ParseInt(parts[0], 10, 64)
	rating, ratingErr := strconv.Atoi(parts[1])
	if idErr != nil || ratingErr != nil {
		log.Printf("malformed rate action value=%q user=%s", value, userID)
		go b.send(userID, Outgoing{Text: "Произошла ошибка при обработке отзыва. Попробуйте снова."})
		return
	}

	promptChannel := cb.Channel.ID
	if promptChannel == "" {
		promptChannel = cb.Container.ChannelID
	}
	promptRef := MessageRef{Channel: promptChannel, Timestamp: cb.Message.Timestamp}

	b.store.Do(userID, func(sess *Session) {
		ack, err := SubmitRating(b.db, ticketID, rating)
		if err != nil {
			log.Printf("rate error ticket=%d rating=%d user=%s: %v", ticketID, rating, userID, err)
			b.send(userID, Outgoing{Text: "Произошла ошибка при обработке отзыва. Попробуйте снова."})
			return
		}

		// The answered prompt is gone either way; its scheduled cleanup
		// will just find nothing.
		if promptRef.Timestamp != "" {
			if err := b.n.Delete(promptRef); err != nil {
				log.Printf("rating prompt delete error user=%s: %v", userID, err)
			}
		}

		sendExpiring(b.n, userID, Outgoing{Text: ack}, b.cfg.PromptTTL())
		*sess = Session{UserID: userID}
		b.send(userID, welcomeMessage(b.db, userID))
	})
}

// --- Composed top-level messages ---

func welcomeMessage(db *sql.DB, userID string) Outgoing {
	keyboard := [][]Button{
		{{Text: "Оставить заявку 📝", ActionID: actionBegin}},
		{{Text: "Справка 📚", ActionID: actionHelp}},
	}
	if admin, err := IsAdmin(db, userID); err == nil && admin {
		keyboard = append(keyboard, []Button{{Text: "Панель администратора ⚙️", ActionID: actionAdminPanel}})
	}
	return Outgoing{
		Text:     "Добро пожаловать в бот техподдержки! 👋\nЯ помогу вам оставить заявку. Выберите действие: ⬇️",
		Keyboard: keyboard,
	}
}

func helpMessage() Outgoing {
	text := "📚 *Как правильно заполнять данные для заявки*\n\n" +
		"Чтобы мы могли оперативно обработать вашу заявку, пожалуйста, следуйте этим рекомендациям:\n\n" +
		"1. *Выберите конфигурацию*: укажите, с какой программой связана ваша проблема " +
		"(например, 'Бухгалтерия предприятия', 'ЗУП' и т.д.).\n" +
		"2. *Укажите организацию и отдел*: например, 'ООО Ромашка, IT-отдел'.\n" +
		"3. *Введите ваше ФИО*: чтобы мы знали, с кем связаться.\n" +
		"4. *Укажите номер телефона*: в любом формате.\n" +
		"5. *Опишите проблему*: подробно расскажите, что случилось. " +
		fmt.Sprintf("Если есть скриншоты, видео или документы, приложите их (до %d вложений).\n\n", MaxAttachments) +
		"Теперь, когда вы знаете, как правильно заполнить заявку, давайте приступим! 🚀"
	return Outgoing{
		Text:     text,
		Keyboard: [][]Button{{{Text: "Создать заявку 📝", ActionID: actionBegin}}},
	}
}

// --- Slack-backed Notifier ---

type slackNotifier struct {
	api *slack.Client

	mu  sync.Mutex
	dms map[string]string // user ID -> DM channel ID
}

func NewSlackNotifier(api *slack.Client) *slackNotifier {
	return &slackNotifier{api: api, dms: make(map[string]string)}
}

func (s *slackNotifier) dmChannel(userID string) (string, error) {
	s.mu.Lock()
	if id, ok := s.dms[userID]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	channel, _, _, err := s.api.OpenConversation(&slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", fmt.Errorf("open DM with %s: %w", userID, err)
	}

	s.mu.Lock()
	s.dms[userID] = channel.ID
	s.mu.Unlock()
	return channel.ID, nil
}

func (s *slackNotifier) Send(userID string, out Outgoing) (MessageRef, error) {
	channelID, err := s.dmChannel(userID)
	if err != nil {
		return MessageRef{}, err
	}

	var opt slack.MsgOption
	if len(out.Keyboard) == 0 {
		opt = slack.MsgOptionText(out.Text, false)
	} else {
		opt = slack.MsgOptionBlocks(renderBlocks(out)...)
	}
	channel, ts, err := s.api.PostMessage(channelID, opt)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{Channel: channel, Timestamp: ts}, nil
}

func renderBlocks(out Outgoing) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, out.Text, false, false),
			nil,
			nil,
		),
	}
	for row, buttons := range out.Keyboard {
		elements := make([]slack.BlockElement, 0, len(buttons))
		for col, btn := range buttons {
			// Suffix keeps action IDs unique within the message.
			elements = append(elements, slack.NewButtonBlockElement(
				fmt.Sprintf("%s/%d_%d", btn.ActionID, row, col),
				btn.Value,
				slack.NewTextBlockObject(slack.PlainTextType, btn.Text, false, false),
			))
		}
		blocks = append(blocks, slack.NewActionBlock(fmt.Sprintf("kb_row_%d", row), elements...))
	}
	return blocks
}

func (s *slackNotifier) Delete(ref MessageRef) error {
	_, _, err := s.api.DeleteMessage(ref.Channel, ref.Timestamp)
	return err
}

func (s *slackNotifier) Schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

func (s *slackNotifier) FetchFile(ref string, w io.Writer) error {
	return s.api.GetFile(ref, w)
}

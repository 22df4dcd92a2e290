package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindly/internal/dispatch"
	"remindly/internal/eventbus"
	"remindly/internal/recurrence"
	rtsup "remindly/internal/runtime/supervisor"
	"remindly/internal/store"
	"remindly/internal/transport"
	logx "remindly/pkg/logx"
)

// Config tunes the telegram front-end.
type Config struct {
	// DefaultTZ is assigned to chats seen for the first time.
	DefaultTZ string
	// TournamentTZ is the timezone the tournament schedule is announced in.
	TournamentTZ string
	// Owners may run admin-only commands when the transport cannot answer
	// membership questions.
	Owners []int64
	// SendTimeout bounds every outgoing transport call.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTZ == "" {
		c.DefaultTZ = "Europe/Moscow"
	}
	if c.TournamentTZ == "" {
		c.TournamentTZ = "Europe/Moscow"
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Service routes incoming updates to command handlers. It owns the
// conversation state of the /add, /add_repeat and inline-edit wizards.
type Service struct {
	cfg     Config
	adapter transport.Adapter
	store   store.Store
	bus     eventbus.Bus
	log     logx.Logger

	sup    *rtsup.Supervisor
	inbox  chan transport.Update
	admins transport.AdminChecker // nil when the adapter can't answer

	mu   sync.Mutex
	conv map[convKey]*convState

	now func() time.Time
}

type convKey struct {
	ChatID int64
	UserID int64
}

type convStage int

const (
	stageAddText convStage = iota + 1
	stageAddWhen
	stageRepeatText
	stageRepeatWhen
	stageEditText
)

type convState struct {
	stage  convStage
	text   string
	editID string
}

func New(cfg Config, ad transport.Adapter, st store.Store, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{
		cfg:     cfg.withDefaults(),
		adapter: ad,
		store:   st,
		bus:     bus,
		log:     log.With(logx.String("service", "bot")),
		inbox:   make(chan transport.Update, 64),
		conv:    map[convKey]*convState{},
		now:     time.Now,
	}
	if ac, ok := ad.(transport.AdminChecker); ok {
		s.admins = ac
	}
	return s
}

// Inbox is the channel the transport adapter should feed updates into.
func (s *Service) Inbox() chan<- transport.Update { return s.inbox }

func (s *Service) Start(ctx context.Context) error {
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)

	if mu, ok := s.adapter.(transport.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(s.sup.Context(), s.cfg.SendTimeout)
		if err := mu.UpdateMenuCommands(mctx, menuCommands); err != nil {
			s.log.Warn("command menu update failed", logx.Err(err))
		}
		cancel()
	}

	s.sup.GoRestart0("bot.updates", s.loop)
	s.log.Info("started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	s.sup.Cancel()
	return s.sup.Wait(ctx)
}

func (s *Service) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-s.inbox:
			if !ok {
				return
			}
			s.handle(ctx, up)
		}
	}
}

func (s *Service) handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			s.handleMessage(ctx, *up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, *up.Callback)
		}
	}
}

// ---- messages ----

func (s *Service) handleMessage(ctx context.Context, m transport.Message) {
	s.ensureChat(ctx, m.ChatID)

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, m, text)
		return
	}

	key := convKey{ChatID: m.ChatID, UserID: m.FromID}
	s.mu.Lock()
	st := s.conv[key]
	s.mu.Unlock()
	if st != nil {
		s.continueConversation(ctx, m, st, text)
	}
}

func (s *Service) handleCommand(ctx context.Context, m transport.Message, text string) {
	fields := strings.Fields(text)
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	// Any command interrupts a running wizard; /cancel only reports it.
	key := convKey{ChatID: m.ChatID, UserID: m.FromID}
	s.clearConv(key)

	switch cmd {
	case "/cancel":
		s.replyPlain(ctx, m.ChatID, msgCancelled)
	case "/start":
		s.replyPlain(ctx, m.ChatID, msgStart)
	case "/help":
		s.replyPlain(ctx, m.ChatID, helpText)
	case "/ping":
		s.cmdPing(ctx, m)
	case "/add":
		s.setConv(key, &convState{stage: stageAddText})
		s.reply(ctx, m.ChatID, msgEnterText)
	case "/add_repeat":
		s.cmdAddRepeat(ctx, m, key, args)
	case "/list":
		s.cmdList(ctx, m)
	case "/delete":
		s.cmdByID(ctx, m, args, "delete")
	case "/pause":
		s.cmdByID(ctx, m, args, "pause")
	case "/resume":
		s.cmdByID(ctx, m, args, "resume")
	case "/set_tz":
		s.cmdSetTZ(ctx, m, args)
	case "/quiet":
		s.cmdQuiet(ctx, m, args)
	case "/role":
		s.cmdRole(ctx, m, args)
	case "/subscribe_tournaments":
		s.cmdTournaments(ctx, m, true)
	case "/unsubscribe_tournaments":
		s.cmdTournaments(ctx, m, false)
	case "/tourney_now":
		s.cmdTourneyNow(ctx, m)
	case "/schedule":
		s.cmdSchedule(ctx, m)
	}
}

func (s *Service) cmdPing(ctx context.Context, m transport.Message) {
	_, err := s.store.GetChat(ctx, m.ChatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.reply(ctx, m.ChatID, msgPongDBErr(err))
		return
	}
	s.replyPlain(ctx, m.ChatID, msgPongOK)
}

// cmdAddRepeat handles both the argument form
// (/add_repeat daily 10:00 Текст, weekdays, sunday, cron "EXPR" Текст)
// and the two-step wizard when called bare.
func (s *Service) cmdAddRepeat(ctx context.Context, m transport.Message, key convKey, args []string) {
	if !s.isEditorOrAdmin(ctx, m) {
		s.replyPlain(ctx, m.ChatID, msgNoEditorRights)
		return
	}
	if len(args) == 0 {
		s.setConv(key, &convState{stage: stageRepeatText})
		s.reply(ctx, m.ChatID, msgEnterTextRepeat)
		return
	}
	if len(args) < 2 {
		s.replyPlain(ctx, m.ChatID,
			"Примеры:\n"+
				"/add_repeat daily 10:00 Собрание\n"+
				"/add_repeat weekdays 09:45 Стендап\n"+
				"/add_repeat sunday 20:00 Отчёт\n"+
				"/add_repeat cron \"*/15 * * * *\" Пульс-чек")
		return
	}

	mode := strings.ToLower(args[0])
	var (
		spec recurrence.Spec
		text string
		err  error
	)
	if mode == "cron" {
		// The expression may be quoted as one argument or split over five.
		rest := strings.TrimSpace(strings.TrimPrefix(strings.Join(args, " "), args[0]))
		expr, tail := splitCronArg(rest)
		spec, err = recurrence.Cron(expr)
		text = tail
	} else {
		var preset string
		switch mode {
		case "daily", "weekdays", "sunday":
			preset = mode + "@" + args[1]
		default:
			s.replyPlain(ctx, m.ChatID, "Тип должен быть: daily | weekdays | sunday | cron")
			return
		}
		spec, err = recurrence.NewPreset(preset)
		text = strings.TrimSpace(strings.Join(args[2:], " "))
	}
	if err != nil {
		s.reply(ctx, m.ChatID, msgCreateCronFail)
		return
	}
	if text == "" {
		s.replyPlain(ctx, m.ChatID, "Добавь текст напоминания.")
		return
	}
	s.createRecurring(ctx, m, text, spec)
}

// splitCronArg separates a cron expression from the reminder text. A
// quoted expression ends at the closing quote; otherwise the first five
// fields are the expression.
func splitCronArg(rest string) (expr, text string) {
	if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
		q := rest[0]
		if end := strings.IndexByte(rest[1:], q); end >= 0 {
			return rest[1 : 1+end], strings.TrimSpace(rest[2+end:])
		}
	}
	parts := strings.Fields(rest)
	if len(parts) <= 5 {
		return strings.Join(parts, " "), ""
	}
	return strings.Join(parts[:5], " "), strings.Join(parts[5:], " ")
}

func (s *Service) cmdList(ctx context.Context, m transport.Message) {
	items, err := s.store.ListChatReminders(ctx, m.ChatID)
	if err != nil {
		s.reply(ctx, m.ChatID, msgPongDBErr(err))
		return
	}
	if len(items) == 0 {
		s.replyPlain(ctx, m.ChatID, msgListEmpty)
		return
	}
	loc := s.chatLocation(ctx, m.ChatID)
	for _, r := range items {
		s.send(ctx, m.ChatID, cardText(r, loc), &transport.SendOptions{
			ParseMode:          "HTML",
			DisablePreview:     true,
			ReplyMarkupAdapter: cardKeyboard(r),
		})
	}
}

func (s *Service) cmdByID(ctx context.Context, m transport.Message, args []string, verb string) {
	if len(args) < 1 {
		s.replyPlain(ctx, m.ChatID, msgUsage(verb))
		return
	}
	r, err := s.resolveReminder(ctx, m.ChatID, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.replyPlain(ctx, m.ChatID, msgNotFound)
		} else {
			s.reply(ctx, m.ChatID, msgPongDBErr(err))
		}
		return
	}

	switch verb {
	case "delete":
		err = s.store.DeleteReminder(ctx, r.ID)
		if err == nil {
			s.publish(eventbus.TypeReminderDeleted, r)
			s.reply(ctx, m.ChatID, msgDeletedID(shortID(r.ID)))
		}
	case "pause":
		err = s.store.SetPaused(ctx, r.ID, true, s.now())
		if err == nil {
			s.publish(eventbus.TypeReminderPaused, r)
			s.reply(ctx, m.ChatID, msgPausedID(shortID(r.ID)))
		}
	case "resume":
		err = s.store.SetPaused(ctx, r.ID, false, s.now())
		if err == nil {
			s.reply(ctx, m.ChatID, msgResumedID(shortID(r.ID)))
		}
	}
	if err != nil {
		s.reply(ctx, m.ChatID, msgCreateFail(err))
	}
}

// resolveReminder accepts a full reminder ID or a unique prefix of one,
// scoped to the chat.
func (s *Service) resolveReminder(ctx context.Context, chatID int64, ref string) (store.Reminder, error) {
	if r, err := s.store.GetReminder(ctx, ref); err == nil {
		if r.ChatID != chatID {
			return store.Reminder{}, store.ErrNotFound
		}
		return r, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Reminder{}, err
	}

	items, err := s.store.ListChatReminders(ctx, chatID)
	if err != nil {
		return store.Reminder{}, err
	}
	var found *store.Reminder
	for i := range items {
		if strings.HasPrefix(items[i].ID, ref) {
			if found != nil {
				return store.Reminder{}, store.ErrNotFound
			}
			found = &items[i]
		}
	}
	if found == nil {
		return store.Reminder{}, store.ErrNotFound
	}
	return *found, nil
}

func (s *Service) cmdSetTZ(ctx context.Context, m transport.Message, args []string) {
	if len(args) < 1 {
		s.replyPlain(ctx, m.ChatID, msgSetTZUsage)
		return
	}
	tz := args[0]
	if err := s.store.SetChatTZ(ctx, m.ChatID, tz); err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			s.reply(ctx, m.ChatID, msgCreateFail(err))
		} else {
			s.reply(ctx, m.ChatID, msgPongDBErr(err))
		}
		return
	}
	s.reply(ctx, m.ChatID, msgTZUpdated(tz))
}

// ---- quiet hours & roles ----

func (s *Service) cmdQuiet(ctx context.Context, m transport.Message, args []string) {
	if len(args) < 1 {
		s.replyPlain(ctx, m.ChatID, msgQuietUsage)
		return
	}
	arg := strings.ToLower(args[0])
	if arg == "off" {
		if err := s.store.SetQuietHours(ctx, m.FromID, nil); err != nil {
			s.reply(ctx, m.ChatID, msgPongDBErr(err))
			return
		}
		s.replyPlain(ctx, m.ChatID, msgQuietOff)
		return
	}
	from, to, ok := parseQuietArg(arg)
	if !ok {
		s.replyPlain(ctx, m.ChatID, msgQuietUsage)
		return
	}
	err := s.store.SetQuietHours(ctx, m.FromID, &store.QuietWindow{From: from, To: to})
	if err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			s.replyPlain(ctx, m.ChatID, msgQuietUsage)
		} else {
			s.reply(ctx, m.ChatID, msgPongDBErr(err))
		}
		return
	}
	s.replyPlain(ctx, m.ChatID, msgQuietSet(from, to))
}

// parseQuietArg parses "23-8" style windows.
func parseQuietArg(s string) (from, to int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	to, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	if from < 0 || from > 23 || to < 0 || to > 23 {
		return 0, 0, false
	}
	return from, to, true
}

func (s *Service) cmdRole(ctx context.Context, m transport.Message, args []string) {
	if len(args) == 1 && strings.ToLower(args[0]) == "list" {
		roles, err := s.store.ListRoles(ctx, m.ChatID)
		if err != nil {
			s.reply(ctx, m.ChatID, msgPongDBErr(err))
			return
		}
		if len(roles) == 0 {
			s.replyPlain(ctx, m.ChatID, msgRolesEmpty)
			return
		}
		lines := []string{msgRolesHeader}
		for _, r := range roles {
			lines = append(lines, msgRoleLine(r))
		}
		s.replyPlain(ctx, m.ChatID, strings.Join(lines, "\n"))
		return
	}

	if len(args) >= 2 {
		verb := strings.ToLower(args[0])
		if verb == "grant" || verb == "revoke" {
			if !s.requireAdmin(ctx, m) {
				return
			}
			target, err := strconv.ParseInt(strings.TrimPrefix(args[1], "@"), 10, 64)
			if err != nil {
				s.replyPlain(ctx, m.ChatID, msgRoleBadTarget)
				return
			}
			if verb == "grant" {
				role := store.RoleEditor
				if len(args) > 2 {
					role = args[2]
				}
				if err := s.store.GrantRole(ctx, m.ChatID, target, role); err != nil {
					s.reply(ctx, m.ChatID, msgPongDBErr(err))
					return
				}
				s.replyPlain(ctx, m.ChatID, msgRoleGranted(role, target))
			} else {
				if err := s.store.RevokeRole(ctx, m.ChatID, target); err != nil {
					s.reply(ctx, m.ChatID, msgPongDBErr(err))
					return
				}
				s.replyPlain(ctx, m.ChatID, msgRoleRevoked(target))
			}
			return
		}
	}

	s.replyPlain(ctx, m.ChatID, msgRoleUsage)
}

// isEditorOrAdmin allows anyone in private chats, chat admins and config
// owners in groups, and group members holding the editor role.
func (s *Service) isEditorOrAdmin(ctx context.Context, m transport.Message) bool {
	if !m.IsGroup {
		return true
	}
	for _, id := range s.cfg.Owners {
		if id == m.FromID {
			return true
		}
	}
	if s.admins != nil {
		ok, err := s.admins.IsChatAdmin(ctx, m.ChatID, m.FromID)
		if err != nil {
			s.log.Warn("admin lookup failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		}
		if ok {
			return true
		}
	}
	ok, err := s.store.HasEditorRole(ctx, m.ChatID, m.FromID)
	if err != nil {
		s.log.Warn("role lookup failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		return false
	}
	return ok
}

// ---- tournaments ----

func (s *Service) requireAdmin(ctx context.Context, m transport.Message) bool {
	if !m.IsGroup {
		s.replyPlain(ctx, m.ChatID, msgGroupOnly)
		return false
	}
	for _, id := range s.cfg.Owners {
		if id == m.FromID {
			return true
		}
	}
	if s.admins != nil {
		ok, err := s.admins.IsChatAdmin(ctx, m.ChatID, m.FromID)
		if err != nil {
			s.log.Warn("admin lookup failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		}
		if ok {
			return true
		}
	}
	s.replyPlain(ctx, m.ChatID, msgAdminOnly)
	return false
}

func (s *Service) cmdTournaments(ctx context.Context, m transport.Message, on bool) {
	if !s.requireAdmin(ctx, m) {
		return
	}
	if err := s.store.SetTournamentSubscription(ctx, m.ChatID, on); err != nil {
		s.reply(ctx, m.ChatID, msgPongDBErr(err))
		return
	}
	if err := s.store.SyncTournamentReminders(ctx, s.now()); err != nil {
		s.log.Warn("tournament sync failed", logx.Err(err))
	}
	if on {
		s.replyPlain(ctx, m.ChatID, msgTourneyOn)
	} else {
		s.replyPlain(ctx, m.ChatID, msgTourneyOff)
	}
}

func (s *Service) cmdTourneyNow(ctx context.Context, m transport.Message) {
	if !s.requireAdmin(ctx, m) {
		return
	}
	s.replyPlain(ctx, m.ChatID, msgTourneySending)

	loc := s.tournamentLocation()
	now := s.now().In(loc)
	display := now.Truncate(5 * time.Minute)
	s.reply(ctx, m.ChatID, dispatch.TournamentPhrase(display.Format("15:04")))
}

func (s *Service) cmdSchedule(ctx context.Context, m transport.Message) {
	loc := s.tournamentLocation()
	slots := recurrence.UpcomingTournamentSlots(s.now(), loc, 6)

	lines := []string{msgScheduleHeader}
	for _, fire := range slots {
		start := fire.Add(5 * time.Minute).In(loc)
		lines = append(lines, fmt.Sprintf("• старт %s — напоминание в %s",
			start.Format("02.01 15:04"), fire.In(loc).Format("15:04")))
	}
	s.replyPlain(ctx, m.ChatID, strings.Join(lines, "\n"))
}

func (s *Service) tournamentLocation() *time.Location {
	loc, err := time.LoadLocation(s.cfg.TournamentTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ---- wizards ----

func (s *Service) continueConversation(ctx context.Context, m transport.Message, st *convState, text string) {
	key := convKey{ChatID: m.ChatID, UserID: m.FromID}

	switch st.stage {
	case stageAddText:
		s.setConv(key, &convState{stage: stageAddWhen, text: text})
		s.reply(ctx, m.ChatID, msgWhenOnce)

	case stageAddWhen:
		loc := s.chatLocation(ctx, m.ChatID)
		when, human, err := ParseOnceWhen(text, s.now().In(loc))
		if err != nil {
			s.replyPlain(ctx, m.ChatID, msgBadOnceTime)
			return
		}
		s.clearConv(key)
		s.createOnce(ctx, m, st.text, when, human)

	case stageRepeatText:
		s.setConv(key, &convState{stage: stageRepeatWhen, text: text})
		s.reply(ctx, m.ChatID, msgWhenRepeat)

	case stageRepeatWhen:
		spec, err := recurrence.Parse(text)
		if err != nil {
			s.reply(ctx, m.ChatID, msgCreateCronFail)
			return
		}
		s.clearConv(key)
		s.createRecurring(ctx, m, st.text, spec)

	case stageEditText:
		s.clearConv(key)
		if err := s.store.SetText(ctx, st.editID, text); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.replyPlain(ctx, m.ChatID, msgNotFound)
			} else {
				s.reply(ctx, m.ChatID, msgCreateFail(err))
			}
			return
		}
		s.replyPlain(ctx, m.ChatID, msgTextUpdated)
		if r, err := s.store.GetReminder(ctx, st.editID); err == nil {
			loc := s.chatLocation(ctx, m.ChatID)
			s.send(ctx, m.ChatID, cardText(r, loc), &transport.SendOptions{
				ParseMode:          "HTML",
				DisablePreview:     true,
				ReplyMarkupAdapter: cardKeyboard(r),
			})
		}
	}
}

func (s *Service) createOnce(ctx context.Context, m transport.Message, text string, when time.Time, human string) {
	r, err := s.store.CreateReminder(ctx, store.Reminder{
		ChatID:    m.ChatID,
		CreatedBy: m.FromID,
		Text:      text,
		Spec:      recurrence.Once(when),
	}, s.now())
	if err != nil {
		s.reply(ctx, m.ChatID, msgCreateFail(err))
		return
	}
	s.publish(eventbus.TypeReminderCreated, r)
	s.reply(ctx, m.ChatID, msgCreatedOnce(text, human))
}

func (s *Service) createRecurring(ctx context.Context, m transport.Message, text string, spec recurrence.Spec) {
	r, err := s.store.CreateReminder(ctx, store.Reminder{
		ChatID:    m.ChatID,
		CreatedBy: m.FromID,
		Text:      text,
		Spec:      spec,
	}, s.now())
	if err != nil {
		s.reply(ctx, m.ChatID, msgCreateFail(err))
		return
	}
	s.publish(eventbus.TypeReminderCreated, r)

	next := "—"
	if r.NextAt != nil {
		next = r.NextAt.In(s.chatLocation(ctx, m.ChatID)).Format("2006-01-02 15:04")
	}
	expr := spec.Expr
	if expr == "" {
		expr = spec.Preset
	}
	s.reply(ctx, m.ChatID, msgCreatedCron(text, expr, next))
}

// ---- callbacks ----

func (s *Service) handleCallback(ctx context.Context, c transport.Callback) {
	parts := strings.SplitN(c.Data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix {
		s.answer(ctx, c.ID, msgBadData)
		return
	}
	action, rid := parts[1], parts[2]
	ref := transport.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID}

	r, err := s.store.GetReminder(ctx, rid)
	if err != nil {
		s.answer(ctx, c.ID, msgNotFound)
		if errors.Is(err, store.ErrNotFound) {
			s.edit(ctx, ref, msgCardGone, nil)
		}
		return
	}

	switch action {
	case actionPause:
		if err := s.store.SetPaused(ctx, r.ID, true, s.now()); err == nil {
			s.publish(eventbus.TypeReminderPaused, r)
			s.refreshCard(ctx, ref, r.ID)
			s.answer(ctx, c.ID, msgPaused)
		}
	case actionResume:
		if err := s.store.SetPaused(ctx, r.ID, false, s.now()); err == nil {
			s.refreshCard(ctx, ref, r.ID)
			s.answer(ctx, c.ID, msgResumed)
		}
	case actionDelete:
		if err := s.store.DeleteReminder(ctx, r.ID); err == nil {
			s.publish(eventbus.TypeReminderDeleted, r)
			s.edit(ctx, ref, msgCardGone, nil)
			s.answer(ctx, c.ID, msgDeleted)
		}
	case actionEdit:
		s.setConv(convKey{ChatID: c.ChatID, UserID: c.FromID},
			&convState{stage: stageEditText, editID: r.ID})
		s.answer(ctx, c.ID, "")
		s.replyPlain(ctx, c.ChatID, msgEditPrompt)
	case actionShift15:
		s.shiftOnce(ctx, c, ref, r, 15*time.Minute, msgShifted15)
	case actionTomorrw:
		s.shiftOnce(ctx, c, ref, r, 24*time.Hour, msgShiftedDay)
	default:
		s.answer(ctx, c.ID, msgBadAction)
	}
}

// shiftOnce moves a one-off reminder forward. Resumes it as a side
// effect (SetNextAt clears pause and claim).
func (s *Service) shiftOnce(ctx context.Context, c transport.Callback, ref transport.MessageRef, r store.Reminder, d time.Duration, done string) {
	if r.Recurring() {
		s.answer(ctx, c.ID, msgOnceOnly)
		return
	}
	if r.NextAt == nil {
		s.answer(ctx, c.ID, msgNoNextAt)
		return
	}
	if err := s.store.SetNextAt(ctx, r.ID, r.NextAt.Add(d)); err != nil {
		s.answer(ctx, c.ID, msgNotFound)
		return
	}
	s.refreshCard(ctx, ref, r.ID)
	s.answer(ctx, c.ID, done)
}

func (s *Service) refreshCard(ctx context.Context, ref transport.MessageRef, id string) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return
	}
	loc := s.chatLocation(ctx, ref.ChatID)
	s.edit(ctx, ref, cardText(r, loc), cardKeyboard(r))
}

// ---- plumbing ----

func (s *Service) ensureChat(ctx context.Context, chatID int64) {
	_, err := s.store.GetChat(ctx, chatID)
	if !errors.Is(err, store.ErrNotFound) {
		return
	}
	err = s.store.UpsertChat(ctx, store.Chat{ChatID: chatID, TZ: s.cfg.DefaultTZ})
	if err != nil {
		s.log.Warn("chat upsert failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) chatLocation(ctx context.Context, chatID int64) *time.Location {
	tz := s.cfg.DefaultTZ
	if c, err := s.store.GetChat(ctx, chatID); err == nil && c.TZ != "" {
		tz = c.TZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Service) setConv(key convKey, st *convState) {
	s.mu.Lock()
	s.conv[key] = st
	s.mu.Unlock()
}

func (s *Service) clearConv(key convKey) {
	s.mu.Lock()
	delete(s.conv, key)
	s.mu.Unlock()
}

func (s *Service) publish(eventType string, r store.Reminder) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: map[string]any{
		"reminder_id": r.ID,
		"chat_id":     r.ChatID,
		"category":    r.Category,
	}})
}

func (s *Service) reply(ctx context.Context, chatID int64, html string) {
	s.send(ctx, chatID, html, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
}

func (s *Service) replyPlain(ctx context.Context, chatID int64, text string) {
	s.send(ctx, chatID, text, &transport.SendOptions{DisablePreview: true})
}

func (s *Service) send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	_, err := s.adapter.SendText(sctx, transport.ChatTarget{ChatID: chatID}, text, opt)
	if err != nil {
		s.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) edit(ctx context.Context, ref transport.MessageRef, text string, markup any) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	if err := s.adapter.EditText(sctx, ref, text, opt); err != nil {
		s.log.Warn("edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}

func (s *Service) answer(ctx context.Context, callbackID, text string) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	if err := s.adapter.AnswerCallback(sctx, callbackID, text); err != nil {
		s.log.Warn("callback answer failed", logx.Err(err))
	}
}

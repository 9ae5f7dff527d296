package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/service"
)

const (
	cbDeletePrefix  = "delinv:"
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"
)

const (
	btnConfirm       = "✅ מחק"
	btnCancel        = "↩️ ביטול"
	menuLabelSummary = "📋 סיכום חודש"
	menuLabelInvoice = "🖼 חשבוניות"
	menuLabelHelp    = "ℹ️ עזרה"
)

// maxDownload caps an attached file; Telegram bots cannot fetch more anyway.
const maxDownload = 20 << 20

// Bot aggregates Telegram API with services.
type Bot struct {
	api      *tgbotapi.BotAPI
	gate     *service.Gate
	entries  *service.EntryService
	invoices *service.InvoiceService
	summary  *service.SummaryService
	chatID   int64
	client   *http.Client
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[int64]bool
}

// Services groups what the bot talks to.
type Services struct {
	Gate     *service.Gate
	Entries  *service.EntryService
	Invoices *service.InvoiceService
	Summary  *service.SummaryService
}

// New authorizes the bot. chatID, when set, receives the daily summary and
// may use the bot without being a private chat.
func New(token string, chatID int64, svc Services, logger *log.Logger) (*Bot, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		gate:     svc.Gate,
		entries:  svc.Entries,
		invoices: svc.Invoices,
		summary:  svc.Summary,
		chatID:   chatID,
		client:   &http.Client{Timeout: time.Minute},
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]bool),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Printf("[warn] handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !b.allowedChat(update.Message.Chat) {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Printf("[warn] handle message: %v", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) allowedChat(chat *tgbotapi.Chat) bool {
	return chat.IsPrivate() || (b.chatID != 0 && chat.ID == b.chatID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		b.logger.Printf("[info] command from chat %d: /%s", msg.Chat.ID, msg.Command())
		switch msg.Command() {
		case "start":
			return b.handleStart(msg)
		case "help":
			return b.handleHelp(msg)
		case "login":
			return b.handleLogin(ctx, msg)
		}
	}

	if !b.loggedIn(msg.Chat.ID) {
		return b.sendText(msg.Chat.ID, "🔒 יש להתחבר קודם: /login &lt;סיסמה&gt;")
	}

	if msg.IsCommand() {
		return b.handleCommand(ctx, msg)
	}
	if len(msg.Photo) > 0 || isImageDocument(msg.Document) {
		return b.handleAttachment(ctx, msg)
	}
	switch strings.TrimSpace(msg.Text) {
	case menuLabelSummary:
		return b.handleSummary(ctx, msg.Chat.ID, "")
	case menuLabelInvoice:
		return b.handleInvoices(ctx, msg.Chat.ID)
	case menuLabelHelp:
		return b.handleHelp(msg)
	}
	return b.sendText(msg.Chat.ID, "לא הבנתי. שלחו תמונה של חשבונית או הקלידו /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "logout":
		b.setSession(msg.Chat.ID, false)
		return b.sendText(msg.Chat.ID, "👋 התנתקתם.")
	case "expense":
		return b.handleEntry(ctx, msg, model.CategoryExpenses)
	case "workday":
		return b.handleEntry(ctx, msg, model.CategoryWorkDays)
	case "summary":
		return b.handleSummary(ctx, msg.Chat.ID, msg.CommandArguments())
	case "invoices":
		return b.handleInvoices(ctx, msg.Chat.ID)
	default:
		return b.sendText(msg.Chat.ID, "הפקודה לא נתמכת. ראו /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := "חבר"
	if msg.From != nil && strings.TrimSpace(msg.From.FirstName) != "" {
		name = strings.TrimSpace(msg.From.FirstName)
	}
	text := fmt.Sprintf(
		"👋 שלום, %s!\n<b>אני יומן העבודות של העסק.</b>\n\n"+
			"התחברו עם /login &lt;סיסמה&gt; ואז:\n"+
			"• שלחו תמונה של חשבונית והיא תישמר בחודש הנוכחי\n"+
			"• /expense &lt;סכום&gt; &lt;תיאור&gt; — הוצאה חדשה\n"+
			"• /workday &lt;סכום&gt; &lt;תיאור&gt; — יום עבודה\n"+
			"• /summary — סיכום החודש\n"+
			"• /help — עזרה",
		html.EscapeString(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>עזרה</b>\n" +
		"• /login &lt;סיסמה&gt; — התחברות לצ'אט הזה\n" +
		"• /logout — התנתקות\n" +
		"• /expense 350 סולר — הוספת הוצאה לחודש הנוכחי\n" +
		"• /workday 1200 חפירה ברחוב הרצל — הוספת יום עבודה\n" +
		"• /summary או /summary 05.2025 — סיכום חודש\n" +
		"• /invoices — חשבוניות החודש, עם מחיקה\n" +
		"• תמונה או קובץ תמונה — נשמר כחשבונית"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message) error {
	pass := strings.TrimSpace(msg.CommandArguments())
	if pass == "" {
		return b.sendText(msg.Chat.ID, "יש לכתוב את הסיסמה אחרי הפקודה: /login &lt;סיסמה&gt;")
	}
	// The passphrase should not stay in the chat history.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		b.logger.Printf("[warn] delete login message: %v", err)
	}
	switch err := b.gate.Verify(ctx, pass); {
	case err == nil:
		b.setSession(msg.Chat.ID, true)
		return b.sendText(msg.Chat.ID, "🔓 מחוברים. אפשר לשלוח חשבוניות.")
	case errors.Is(err, service.ErrGateNotConfigured):
		return b.sendText(msg.Chat.ID, "עדיין לא הוגדרה סיסמה. יש להגדיר אותה קודם מהאפליקציה.")
	case errors.Is(err, service.ErrWrongPassphrase):
		return b.sendText(msg.Chat.ID, "❌ סיסמה שגויה.")
	default:
		return err
	}
}

func (b *Bot) handleEntry(ctx context.Context, msg *tgbotapi.Message, cat model.Category) error {
	cost, text, ok := parseEntryArgs(msg.CommandArguments())
	if !ok {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("שימוש: /%s &lt;סכום&gt; &lt;תיאור&gt;", msg.Command()))
	}
	p, res, err := b.entries.Add(ctx, service.EntryInput{
		Category: cat,
		Text:     text,
		Cost:     cost,
		At:       b.now(),
	})
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("לא נשמר: %s", html.EscapeString(err.Error())))
	}
	label := "הוצאה"
	if cat == model.CategoryWorkDays {
		label = "יום עבודה"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ %s נוסף ל-%s: %s (%s)%s",
		label, monthLabel(p.Year, p.Month), html.EscapeString(text), html.EscapeString(cost), saveNote(res)))
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64, args string) error {
	year, month, ok := parseMonthArg(args, b.now())
	if !ok {
		return b.sendText(chatID, "חודש לא תקין. דוגמה: /summary 05.2025")
	}
	sum, err := b.summary.Month(ctx, year, month)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("לא ניתן להפיק סיכום: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(chatID, sum.Text())
}

func (b *Bot) handleInvoices(ctx context.Context, chatID int64) error {
	now := b.now()
	year, month := now.Year(), int(now.Month())
	list, src, err := b.invoices.List(ctx, month, year)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("לא ניתן לטעון חשבוניות: %s", html.EscapeString(err.Error())))
	}
	if len(list) == 0 {
		return b.sendText(chatID, fmt.Sprintf("אין חשבוניות ב-%s.", monthLabel(year, month)))
	}
	text := formatInvoiceList(list, year, month, src)
	return b.sendWithReplyMarkup(chatID, text, invoiceKeyboard(list, year, month))
}

func (b *Bot) handleAttachment(ctx context.Context, msg *tgbotapi.Message) error {
	fileID, name, mime := attachmentOf(msg)
	data, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Printf("[warn] download %s: %v", fileID, err)
		return b.sendText(msg.Chat.ID, "לא הצלחתי להוריד את הקובץ מטלגרם.")
	}

	now := b.now()
	year, month := now.Year(), int(now.Month())
	report := b.invoices.Attach(ctx, []service.Upload{{Name: name, MimeType: mime, Data: data}}, month, year)
	if len(report.Failures) > 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("❌ החשבונית לא נשמרה: %s", html.EscapeString(report.Failures[0].Err.Error())))
	}
	inv := report.Invoices[0]
	where := "בענן"
	if inv.State == model.InvoicePersistedLocal {
		where = "במכשיר בלבד (הענן לא זמין)"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🧾 חשבונית נשמרה ב-%s %s (%dx%d).", monthLabel(year, month), where, inv.Width, inv.Height))
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Printf("[warn] callback ack: %v", err)
	}
	chatID := cb.Message.Chat.ID
	if !b.loggedIn(chatID) {
		return nil
	}

	action, year, month, id, ok := parseCallback(cb.Data)
	if !ok {
		return nil
	}
	switch action {
	case cbDeletePrefix:
		return b.askDeleteConfirmation(chatID, year, month, id)
	case cbConfirmPrefix:
		b.logger.Printf("[info] delete invoice %s chat=%d", id, chatID)
		removed, err := b.invoices.RemoveByID(ctx, month, year, id)
		if err != nil || !removed {
			if err != nil {
				b.logger.Printf("[warn] delete invoice %s: %v", id, err)
			}
			return b.sendText(chatID, "❌ המחיקה נכשלה. נסו שוב.")
		}
		if err := b.sendText(chatID, "🗑 החשבונית נמחקה."); err != nil {
			return err
		}
		return b.handleInvoices(ctx, chatID)
	case cbCancelPrefix:
		return b.sendText(chatID, "בוטל")
	default:
		return nil
	}
}

// parseCallback splits callback data into its prefix and invoice reference.
func parseCallback(data string) (action string, year, month int, id string, ok bool) {
	for _, prefix := range []string{cbDeletePrefix, cbConfirmPrefix, cbCancelPrefix} {
		if !strings.HasPrefix(data, prefix) {
			continue
		}
		year, month, id, ok = parseInvoiceRef(strings.TrimPrefix(data, prefix))
		return prefix, year, month, id, ok
	}
	return "", 0, 0, "", false
}

func (b *Bot) askDeleteConfirmation(chatID int64, year, month int, id string) error {
	ref := invoiceRef(year, month, id)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirmPrefix+ref),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancelPrefix+ref),
		),
	)
	return b.sendWithReplyMarkup(chatID, "למחוק את החשבונית? לא ניתן לשחזר.", kb)
}

// SendDailySummary pushes the current month summary to the configured chat,
// or to every logged-in chat when none is configured.
func (b *Bot) SendDailySummary(ctx context.Context) error {
	now := b.now()
	sum, err := b.summary.Month(ctx, now.Year(), int(now.Month()))
	if err != nil {
		return err
	}
	text := sum.Text()

	targets := b.loggedInChats()
	if b.chatID != 0 {
		targets = []int64{b.chatID}
	}
	for _, chatID := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(chatID, text); err != nil {
			b.logger.Printf("[warn] send summary to %d: %v", chatID, err)
		}
	}
	return nil
}

func (b *Bot) loggedIn(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[chatID]
}

func (b *Bot) setSession(chatID int64, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if on {
		b.sessions[chatID] = true
		return
	}
	delete(b.sessions, chatID)
}

func (b *Bot) loggedInChats() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, 0, len(b.sessions))
	for id := range b.sessions {
		out = append(out, id)
	}
	return out
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelSummary),
			tgbotapi.NewKeyboardButton(menuLabelInvoice),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func invoiceKeyboard(list []model.Invoice, year, month int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for i, inv := range list {
		label := fmt.Sprintf("🗑 %d. %s", i+1, shortName(inv.Name, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbDeletePrefix+invoiceRef(year, month, inv.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatInvoiceList(list []model.Invoice, year, month int, src service.Source) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🖼 <b>חשבוניות %s</b>\n", monthLabel(year, month)))
	if src == service.SourceLocal {
		builder.WriteString("<i>הענן לא זמין, מוצגות חשבוניות מהמכשיר</i>\n")
	}
	builder.WriteString("\n")
	for i, inv := range list {
		marker := "☁️"
		if inv.State == model.InvoicePersistedLocal {
			marker = "📱"
		}
		builder.WriteString(fmt.Sprintf("%d. %s %s · %s\n", i+1, marker,
			html.EscapeString(shortName(inv.Name, 40)), inv.CreatedAt.Local().Format("02.01 15:04")))
	}
	return strings.TrimSpace(builder.String())
}

// parseEntryArgs splits "<cost> <text>"; the cost may also come last.
func parseEntryArgs(args string) (cost, text string, ok bool) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", "", false
	}
	if c, valid := model.SanitizeCost(fields[0]); valid && c != "" {
		return c, strings.Join(fields[1:], " "), true
	}
	last := len(fields) - 1
	if c, valid := model.SanitizeCost(fields[last]); valid && c != "" {
		return c, strings.Join(fields[:last], " "), true
	}
	return "", "", false
}

// parseMonthArg reads "MM.YYYY", "MM/YYYY" or "YYYY-MM"; empty means the
// month of now.
func parseMonthArg(args string, now time.Time) (year, month int, ok bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return now.Year(), int(now.Month()), true
	}
	var a, b string
	switch {
	case strings.ContainsAny(args, "./"):
		parts := strings.FieldsFunc(args, func(r rune) bool { return r == '.' || r == '/' })
		if len(parts) != 2 {
			return 0, 0, false
		}
		a, b = parts[1], parts[0]
	case strings.Contains(args, "-"):
		parts := strings.SplitN(args, "-", 2)
		a, b = parts[0], parts[1]
	default:
		return 0, 0, false
	}
	y, yerr := strconv.Atoi(a)
	m, merr := strconv.Atoi(b)
	if yerr != nil || merr != nil {
		return 0, 0, false
	}
	if _, err := model.NewPartition(model.CategoryWorkDays, y, m); err != nil {
		return 0, 0, false
	}
	return y, m, true
}

func invoiceRef(year, month int, id string) string {
	return fmt.Sprintf("%04d-%02d:%s", year, month, id)
}

func parseInvoiceRef(ref string) (year, month int, id string, ok bool) {
	period, id, found := strings.Cut(ref, ":")
	if !found || id == "" {
		return 0, 0, "", false
	}
	year, month, ok = parseMonthArg(period, time.Time{})
	return year, month, id, ok
}

func attachmentOf(msg *tgbotapi.Message) (fileID, name, mime string) {
	if len(msg.Photo) > 0 {
		largest := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		return largest.FileID, fmt.Sprintf("photo-%d.jpg", msg.MessageID), "image/jpeg"
	}
	name = msg.Document.FileName
	if name == "" {
		name = fmt.Sprintf("document-%d", msg.MessageID)
	}
	return msg.Document.FileID, name, msg.Document.MimeType
}

func isImageDocument(doc *tgbotapi.Document) bool {
	return doc != nil && strings.HasPrefix(strings.ToLower(doc.MimeType), "image/")
}

func monthLabel(year, month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%02d.%d", month, year)
	}
	return fmt.Sprintf("%s %d", service.HebrewMonths[month-1], year)
}

func saveNote(res service.SaveResult) string {
	switch {
	case res.Cloud:
		return ""
	case res.Local:
		return "\n<i>נשמר במכשיר בלבד. השמירה לענן נכשלה ותנוסה שוב בעריכה הבאה</i>"
	default:
		return "\n⚠️ <i>השמירה נכשלה, ננסה שוב בשמירה האוטומטית</i>"
	}
}

func shortName(name string, maxLen int) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

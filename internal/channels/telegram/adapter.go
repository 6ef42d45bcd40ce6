// Package telegram connects the command registry and callback router to
// the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/commands"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/observability"
)

// Mode represents the operation mode of the Telegram adapter.
type Mode string

const (
	// ModePolling uses long polling to receive updates from Telegram
	ModePolling Mode = "polling"

	// ModeWebhook uses webhooks to receive updates from Telegram
	ModeWebhook Mode = "webhook"
)

const (
	unavailableText = "The MateBot core service is currently unavailable. Please try again later."
	failureText     = "Sorry, something went wrong while handling your command. You may file a bug report."

	maxPublishedCommands = 100
)

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required)
	Token string

	// Mode determines whether to use long polling or webhooks
	Mode Mode

	// WebhookURL is the HTTPS URL for webhook mode (required if Mode is ModeWebhook)
	WebhookURL string

	// WebhookSecret is checked against the secret token header of webhook calls
	WebhookSecret string

	// ListenAddr is the address for webhook server, e.g., ":8443"
	ListenAddr string

	// MaxReconnectAttempts is the maximum number of reconnection attempts
	MaxReconnectAttempts int

	// ReconnectDelay is the delay between reconnection attempts
	ReconnectDelay time.Duration

	// RateLimit is the number of outgoing API calls per second
	RateLimit float64

	// RateBurst is the burst capacity for outgoing calls
	RateBurst int

	// Prefixes start a command, "/" by default
	Prefixes []string

	// Logger is an optional slog.Logger instance
	Logger *slog.Logger

	// Metrics is optional
	Metrics *observability.Metrics
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return newError(ErrCodeConfig, "token is required", nil)
	}

	if c.Mode == "" {
		c.Mode = ModePolling
	}
	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return newError(ErrCodeConfig, "webhook_url is required for webhook mode", nil)
		}
		if c.ListenAddr == "" {
			c.ListenAddr = ":8443"
		}
	default:
		return newError(ErrCodeConfig, fmt.Sprintf("unknown mode %q", c.Mode), nil)
	}

	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}

	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}

	if c.RateLimit == 0 {
		c.RateLimit = 25 // Telegram allows about 30 messages per second
	}

	if c.RateBurst == 0 {
		c.RateBurst = 5
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}

// Status is the connection state of the adapter.
type Status struct {
	Connected bool
	Error     string
	// LastUpdate is the unix time of the last handled update.
	LastUpdate int64
}

// Adapter receives Telegram updates, runs commands and button presses, and
// sends the replies.
type Adapter struct {
	config     Config
	client     BotClient
	parser     *commands.Parser
	registry   *commands.Registry
	router     *callbacks.Router
	identities *ledger.Identities
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger

	status   Status
	statusMu sync.RWMutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewAdapter creates a new Telegram adapter. identities may be nil; when
// set, every account that sends an update is remembered there.
func NewAdapter(config Config, registry *commands.Registry, router *callbacks.Router, identities *ledger.Identities) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || router == nil {
		return nil, newError(ErrCodeConfig, "registry and router are required", nil)
	}

	return &Adapter{
		config:     config,
		parser:     commands.NewParser("", config.Prefixes...),
		registry:   registry,
		router:     router,
		identities: identities,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		metrics:    config.Metrics,
		logger:     config.Logger.With("adapter", "telegram"),
	}, nil
}

// Start connects to Telegram, publishes the command list and begins
// receiving updates in the background.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("starting telegram adapter",
		"mode", a.config.Mode,
		"rate_limit", a.config.RateLimit)

	if a.client == nil {
		opts := []bot.Option{bot.WithDefaultHandler(a.handleUpdate)}
		if a.config.WebhookSecret != "" {
			opts = append(opts, bot.WithWebhookSecretToken(a.config.WebhookSecret))
		}
		b, err := bot.New(a.config.Token, opts...)
		if err != nil {
			cancel()
			a.updateStatus(false, fmt.Sprintf("failed to create bot: %v", err))
			return newError(ErrCodeAuthentication, "failed to create bot", err)
		}
		a.client = newRealBotClient(b)
	}

	me, err := a.client.GetMe(ctx)
	if err != nil {
		cancel()
		return newError(ErrCodeConnection, "failed to fetch bot account", err)
	}
	a.parser.SetBotName(me.Username)
	a.logger.Info("authenticated", "username", me.Username)

	if err := a.PublishCommands(ctx); err != nil {
		// Clients fall back to typing commands by hand.
		a.logger.Warn("failed to publish commands", "error", err)
	}

	a.wg.Add(1)
	go a.runWithReconnection(ctx)

	a.logger.Info("telegram adapter started successfully")
	return nil
}

// runWithReconnection handles the main update loop with automatic reconnection.
func (a *Adapter) runWithReconnection(ctx context.Context) {
	defer a.wg.Done()

	attempts := 0
	maxAttempts := a.config.MaxReconnectAttempts

	for {
		select {
		case <-ctx.Done():
			a.updateStatus(false, "")
			a.logger.Info("telegram adapter stopped")
			return
		default:
		}

		err := a.run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			a.updateStatus(false, "")
			return
		}

		attempts++
		a.updateStatus(false, fmt.Sprintf("bot error (attempt %d/%d)", attempts, maxAttempts))
		a.logger.Error("telegram bot error",
			"error", err,
			"attempt", attempts,
			"max_attempts", maxAttempts)

		if attempts >= maxAttempts {
			a.logger.Error("max reconnection attempts reached, stopping adapter")
			return
		}

		select {
		case <-ctx.Done():
			a.updateStatus(false, "")
			return
		case <-time.After(a.config.ReconnectDelay):
			a.logger.Info("attempting to reconnect")
		}
	}
}

// run handles the actual bot execution based on mode.
func (a *Adapter) run(ctx context.Context) error {
	a.updateStatus(true, "")

	if a.config.Mode == ModeWebhook {
		return a.runWebhook(ctx)
	}
	return a.runPolling(ctx)
}

// runPolling blocks until ctx is done.
func (a *Adapter) runPolling(ctx context.Context) error {
	a.logger.Info("starting long polling mode")

	if _, err := a.client.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return newError(ErrCodeConnection, "failed to delete webhook", err)
	}
	a.client.Start(ctx)
	return nil
}

// runWebhook registers the webhook and serves it on ListenAddr until ctx
// is done.
func (a *Adapter) runWebhook(ctx context.Context) error {
	a.logger.Info("starting webhook mode", "url", a.config.WebhookURL, "listen", a.config.ListenAddr)

	_, err := a.client.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:         a.config.WebhookURL,
		SecretToken: a.config.WebhookSecret,
	})
	if err != nil {
		return newError(ErrCodeConnection, "failed to set webhook", err)
	}

	server := &http.Server{
		Addr:              a.config.ListenAddr,
		Handler:           a.client.WebhookHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	workerCtx, stopWorker := context.WithCancel(ctx)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		a.client.StartWebhook(workerCtx)
	}()
	defer func() {
		stopWorker()
		worker.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return newError(ErrCodeConnection, "webhook server failed", err)
	}
}

// Stop gracefully shuts down the adapter.
// It waits for pending operations to complete or the context to timeout.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping telegram adapter")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("telegram adapter stopped gracefully")
		return nil
	case <-ctx.Done():
		return newError(ErrCodeTimeout, "stop timeout", ctx.Err())
	}
}

// Status returns the current connection status.
func (a *Adapter) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *Adapter) updateStatus(connected bool, errMsg string) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.Connected = connected
	a.status.Error = errMsg
}

func (a *Adapter) touch() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.LastUpdate = time.Now().Unix()
}

// PublishCommands sends the visible commands to Telegram so clients can
// offer them for completion.
func (a *Adapter) PublishCommands(ctx context.Context) error {
	visible := a.registry.ListVisible()
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })

	list := make([]models.BotCommand, 0, len(visible))
	for _, cmd := range visible {
		if len(list) == maxPublishedCommands {
			a.logger.Warn("too many commands, the rest is not published", "published", len(list))
			break
		}
		description := cmd.Description
		if description == "" {
			description = cmd.Name
		}
		if len(description) > 256 {
			description = description[:253] + "..."
		}
		list = append(list, models.BotCommand{Command: cmd.Name, Description: description})
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return newError(ErrCodeRateLimit, "rate limit wait cancelled", err)
	}
	if _, err := a.client.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: list}); err != nil {
		return newError(ErrCodeSend, "failed to set commands", err)
	}
	a.logger.Debug("published commands", "count", len(list))
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	a.HandleUpdate(ctx, update)
}

// HandleUpdate processes one update: command messages are executed and
// button presses are dispatched. Other updates are ignored.
func (a *Adapter) HandleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}
	a.touch()

	switch {
	case update.Message != nil:
		var userID int64
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
		a.handleMessage(observability.WithUpdate(ctx, update.ID, userID), update.Message)
	case update.CallbackQuery != nil:
		a.handleCallback(observability.WithUpdate(ctx, update.ID, update.CallbackQuery.From.ID), update.CallbackQuery)
	}
}

func (a *Adapter) remember(u *models.User) {
	if a.identities != nil && u != nil && !u.IsBot {
		a.identities.Remember(accountOf(u))
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}
	a.remember(msg.From)

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	parsed := a.parser.ParseCommand(text, convertEntities(entities))
	if parsed == nil {
		a.metrics.UpdateReceived("message")
		return
	}
	a.metrics.UpdateReceived("command")

	private := msg.Chat.Type == models.ChatTypePrivate
	a.logger.DebugContext(ctx, "received command",
		"chat_id", msg.Chat.ID,
		"command", parsed.Name,
		"private", private)

	res, err := a.registry.Execute(ctx, &commands.Invocation{
		Name:      parsed.Name,
		Args:      parsed.Args,
		Entities:  parsed.Entities,
		RawText:   text,
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Private:   private,
		Sender:    senderOf(msg.From),
	})

	replyTo := 0
	if !private {
		replyTo = msg.ID
	}

	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		// Unknown commands in groups may belong to other bots.
		if private {
			a.reply(ctx, msg.Chat.ID, replyTo, &commands.Result{Text: a.registry.Suggest(ctx, parsed.Name)})
		}
	case ledger.IsConnectivity(err):
		a.logger.WarnContext(ctx, "ledger unavailable", "command", parsed.Name, "error", err)
		a.reply(ctx, msg.Chat.ID, replyTo, &commands.Result{Text: unavailableText})
	case err != nil:
		a.logger.ErrorContext(ctx, "command failed", "command", parsed.Name, "error", err)
		a.reply(ctx, msg.Chat.ID, replyTo, &commands.Result{Text: failureText})
	case res == nil || res.Suppress:
	case res.Document != nil:
		a.sendDocument(ctx, msg.Chat.ID, res.Document)
	default:
		a.reply(ctx, msg.Chat.ID, replyTo, res)
	}
}

func (a *Adapter) handleCallback(ctx context.Context, cq *models.CallbackQuery) {
	a.metrics.UpdateReceived("callback")
	a.remember(&cq.From)

	q := &callbacks.Query{
		ID:      cq.ID,
		From:    senderOf(&cq.From),
		Payload: cq.Data,
	}
	if m := cq.Message.Message; m != nil {
		q.ChatID = m.Chat.ID
		q.MessageID = m.ID
		q.MessageText = m.Text
		q.Quoted = firstCode(m.Text, m.Entities)
	}

	// Dispatch logs its own failures and always returns an answer.
	answer, _ := a.router.Dispatch(ctx, q)

	if answer.Edit != nil && q.MessageID != 0 {
		a.edit(ctx, q.ChatID, q.MessageID, answer.Edit)
	}
	a.answer(ctx, cq.ID, answer)
}

// reply sends res as a message. Markdown that Telegram refuses to parse is
// sent again as plain text.
func (a *Adapter) reply(ctx context.Context, chatID int64, replyTo int, res *commands.Result) {
	if res.Text == "" {
		return
	}
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   res.Text,
	}
	if res.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if kb := inlineKeyboard(res.Keyboard); kb != nil {
		params.ReplyMarkup = kb
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
	}

	err := a.send(ctx, "reply", func() error {
		_, err := a.client.SendMessage(ctx, params)
		return err
	})
	if err != nil && res.Markdown && GetErrorCode(err) == ErrCodeSend {
		a.logger.WarnContext(ctx, "markdown reply failed, sending plain text", "chat_id", chatID, "error", err)
		params.ParseMode = ""
		err = a.send(ctx, "reply", func() error {
			_, err := a.client.SendMessage(ctx, params)
			return err
		})
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to send message", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) edit(ctx context.Context, chatID int64, messageID int, e *callbacks.Edit) {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      e.Text,
	}
	if e.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	// Without reply markup Telegram removes the buttons.
	if kb := inlineKeyboard(e.Keyboard); kb != nil {
		params.ReplyMarkup = kb
	}
	err := a.send(ctx, "edit", func() error {
		_, err := a.client.EditMessageText(ctx, params)
		return err
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (a *Adapter) answer(ctx context.Context, queryID string, answer *callbacks.Answer) {
	err := a.send(ctx, "answer", func() error {
		_, err := a.client.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: queryID,
			Text:            answer.Text,
			ShowAlert:       answer.ShowAlert,
		})
		return err
	})
	if err != nil {
		a.logger.WarnContext(ctx, "failed to answer callback query", "query_id", queryID, "error", err)
	}
}

func (a *Adapter) sendDocument(ctx context.Context, chatID int64, doc *commands.Document) {
	err := a.send(ctx, "document", func() error {
		_, err := a.client.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileUpload{Filename: doc.Name, Data: bytes.NewReader(doc.Content)},
			Caption:  doc.Caption,
		})
		return err
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to send document", "chat_id", chatID, "name", doc.Name, "error", err)
	}
}

// send throttles one API call and records its outcome.
func (a *Adapter) send(ctx context.Context, kind string, call func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		a.metrics.MessageSent(kind, "error")
		return newError(ErrCodeRateLimit, "rate limit wait cancelled", err)
	}
	if err := call(); err != nil {
		a.metrics.MessageSent(kind, "error")
		return newError(ErrCodeSend, kind+" failed", err)
	}
	a.metrics.MessageSent(kind, "ok")
	return nil
}

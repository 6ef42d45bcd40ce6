package telegram

import (
	"context"
	"net/http"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotClient is the part of the Bot API the adapter uses. Tests inject a
// fake; production wraps *bot.Bot.
type BotClient interface {
	// GetMe returns the bot's own account.
	GetMe(ctx context.Context) (*models.User, error)

	// SendMessage sends a text message to a chat.
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)

	// EditMessageText replaces the text and buttons of a sent message.
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)

	// AnswerCallbackQuery acknowledges a button press.
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)

	// SendDocument uploads a file to a chat.
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)

	// SetMyCommands publishes the command list shown by clients.
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)

	// SetWebhook configures a webhook for receiving updates.
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)

	// DeleteWebhook switches the bot back to polling.
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)

	// WebhookHandler serves webhook requests.
	WebhookHandler() http.HandlerFunc

	// Start polls for updates until ctx is done.
	Start(ctx context.Context)

	// StartWebhook processes webhook updates until ctx is done.
	StartWebhook(ctx context.Context)
}

// realBotClient wraps a *bot.Bot to implement BotClient.
type realBotClient struct {
	bot *bot.Bot
}

func newRealBotClient(b *bot.Bot) BotClient {
	return &realBotClient{bot: b}
}

func (r *realBotClient) GetMe(ctx context.Context) (*models.User, error) {
	return r.bot.GetMe(ctx)
}

func (r *realBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	return r.bot.SendMessage(ctx, params)
}

func (r *realBotClient) EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	return r.bot.EditMessageText(ctx, params)
}

func (r *realBotClient) AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	return r.bot.AnswerCallbackQuery(ctx, params)
}

func (r *realBotClient) SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error) {
	return r.bot.SendDocument(ctx, params)
}

func (r *realBotClient) SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error) {
	return r.bot.SetMyCommands(ctx, params)
}

func (r *realBotClient) SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error) {
	return r.bot.SetWebhook(ctx, params)
}

func (r *realBotClient) DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error) {
	return r.bot.DeleteWebhook(ctx, params)
}

func (r *realBotClient) WebhookHandler() http.HandlerFunc {
	return r.bot.WebhookHandler()
}

func (r *realBotClient) Start(ctx context.Context) {
	r.bot.Start(ctx)
}

func (r *realBotClient) StartWebhook(ctx context.Context) {
	r.bot.StartWebhook(ctx)
}

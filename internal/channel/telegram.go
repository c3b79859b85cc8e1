// Package channel posts rendered profiles to the community Telegram channel.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"profileflow/pkg/domain"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config identifies the bot and the chat profiles are posted to.
type Config struct {
	Token       string
	ChatID      string // numeric chat id or @channelusername
	APIEndpoint string // defaults to tgbotapi.APIEndpoint
	HTTPClient  *http.Client
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPublisher sends each profile document with an HTML caption.
type TelegramPublisher struct {
	bot      sender
	chatID   int64
	username string
}

// NewTelegram authenticates the bot and returns a publisher for cfg.ChatID.
func NewTelegram(cfg Config) (*TelegramPublisher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newPublisher(bot, cfg.ChatID)
}

func newPublisher(bot sender, chat string) (*TelegramPublisher, error) {
	chat = strings.TrimSpace(chat)
	p := &TelegramPublisher{bot: bot}
	if strings.HasPrefix(chat, "@") {
		p.username = chat
		return p, nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: chat id %q: want a number or @channel", chat)
	}
	p.chatID = id
	return p, nil
}

// Publish uploads the artifact as a document. The caption is sent as HTML.
func (p *TelegramPublisher) Publish(ctx context.Context, a domain.Artifact, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var file tgbotapi.RequestFileData
	switch {
	case len(a.Data) > 0:
		file = tgbotapi.FileBytes{Name: a.Name, Bytes: a.Data}
	case a.Path != "":
		file = tgbotapi.FilePath(a.Path)
	default:
		return fmt.Errorf("telegram: artifact %s has no content", a.Key)
	}
	doc := tgbotapi.NewDocument(p.chatID, file)
	if p.username != "" {
		doc.ChannelUsername = p.username
	}
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	if _, err := p.bot.Send(doc); err != nil {
		return fmt.Errorf("telegram: send %s: %w", a.Name, err)
	}
	return nil
}

// LogPublisher records posts in the log instead of delivering them.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the artifact and caption.
func (l LogPublisher) Publish(ctx context.Context, a domain.Artifact, caption string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "dry run: profile not posted", "artifact", a.Key, "name", a.Name, "caption", caption)
	return nil
}

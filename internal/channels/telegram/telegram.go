// Package telegram is the Telegram channel: long polling in, text and
// document sends out. Incoming attachments are downloaded to the
// workspace inbox so file tools can reach them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/pocketd/internal/channels"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// Config holds the Telegram adapter settings.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string

	// Workspace is where incoming attachments are saved (under
	// .pocketd/inbox). Empty disables downloads.
	Workspace string

	// Logger is an optional logger.
	Logger *slog.Logger
}

// Adapter connects Telegram to the bus via long polling.
type Adapter struct {
	config    Config
	publisher channels.InboundPublisher
	logger    *slog.Logger
	client    *http.Client

	bot    *bot.Bot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Telegram adapter publishing to the given bus.
func New(config Config, publisher channels.InboundPublisher) (*Adapter, error) {
	if strings.TrimSpace(config.Token) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		config:    config,
		publisher: publisher,
		logger:    logger.With("component", "telegram"),
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *Adapter) Name() models.ChannelType { return models.ChannelTelegram }

// Start creates the bot and launches long polling.
func (a *Adapter) Start(ctx context.Context) error {
	b, err := bot.New(a.config.Token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	a.bot = b

	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("telegram long polling started")
		b.Start(ctx)
		a.logger.Info("telegram long polling stopped")
	}()
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	tg := update.Message

	msg := models.InboundMessage{
		Channel:  models.ChannelTelegram,
		SenderID: strconv.FormatInt(tg.From.ID, 10),
		ChatID:   strconv.FormatInt(tg.Chat.ID, 10),
		Content:  tg.Text,
		Metadata: map[string]any{
			"message_id": tg.ID,
			"username":   tg.From.Username,
		},
	}
	if msg.Content == "" {
		msg.Content = tg.Caption
	}

	if media := a.collectMedia(ctx, b, tg); len(media) > 0 {
		msg.Media = media
	}

	if err := a.publisher.PublishInbound(ctx, msg); err != nil {
		a.logger.Error("publish inbound failed", "chat", msg.ChatID, "error", err)
	}
}

// collectMedia downloads the message's attachments to the workspace
// inbox. Download failures drop the attachment, not the message.
func (a *Adapter) collectMedia(ctx context.Context, b *bot.Bot, tg *tgmodels.Message) []models.Media {
	var media []models.Media

	if n := len(tg.Photo); n > 0 {
		// Telegram sends multiple sizes; the last is the largest.
		photo := tg.Photo[n-1]
		if path, err := a.download(ctx, b, photo.FileID, photo.FileID+".jpg"); err == nil {
			media = append(media, models.Media{
				Type:     models.MediaImage,
				Path:     path,
				MimeType: "image/jpeg",
			})
		} else {
			a.logger.Warn("photo download failed", "error", err)
		}
	}
	if tg.Document != nil {
		name := tg.Document.FileName
		if name == "" {
			name = tg.Document.FileID
		}
		if path, err := a.download(ctx, b, tg.Document.FileID, name); err == nil {
			media = append(media, models.Media{
				Type:     models.MediaFile,
				Path:     path,
				MimeType: tg.Document.MimeType,
				Filename: name,
			})
		} else {
			a.logger.Warn("document download failed", "error", err)
		}
	}
	if tg.Voice != nil {
		if path, err := a.download(ctx, b, tg.Voice.FileID, tg.Voice.FileID+".ogg"); err == nil {
			media = append(media, models.Media{
				Type:     models.MediaAudio,
				Path:     path,
				MimeType: tg.Voice.MimeType,
			})
		} else {
			a.logger.Warn("voice download failed", "error", err)
		}
	}
	return media
}

func (a *Adapter) download(ctx context.Context, b *bot.Bot, fileID, name string) (string, error) {
	if a.config.Workspace == "" {
		return "", errors.New("no workspace configured")
	}
	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	link := b.FileDownloadLink(file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	inbox := filepath.Join(a.config.Workspace, ".pocketd", "inbox")
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return "", fmt.Errorf("create inbox: %w", err)
	}
	target := filepath.Join(inbox, filepath.Base(name))
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create inbox file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("write inbox file: %w", err)
	}
	return target, nil
}

// Send delivers an outbound message: text first, then each attachment
// as a document.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	if a.bot == nil {
		return errors.New("telegram adapter not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	if msg.Content != "" {
		if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   msg.Content,
		}); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	for _, media := range msg.Media {
		if err := a.sendMedia(ctx, chatID, media); err != nil {
			return fmt.Errorf("send attachment %s: %w", media.Filename, err)
		}
	}
	return nil
}

func (a *Adapter) sendMedia(ctx context.Context, chatID int64, media models.Media) error {
	var reader io.Reader
	name := media.Filename
	switch {
	case len(media.Data) > 0:
		reader = strings.NewReader(string(media.Data))
	case media.Path != "":
		file, err := os.Open(media.Path)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer file.Close()
		reader = file
		if name == "" {
			name = filepath.Base(media.Path)
		}
	default:
		return errors.New("attachment has neither data nor path")
	}

	_, err := a.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &tgmodels.InputFileUpload{Filename: name, Data: reader},
	})
	return err
}

// Stop cancels long polling and waits for it to exit.
func (a *Adapter) Stop(ctx context.Context) error {
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

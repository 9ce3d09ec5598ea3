package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/vuelospro/go-flight-desk/internal/config"
)

// botClient is the slice of the Telegram API the notifier needs. It is
// satisfied by *tgbotapi.BotAPI and by fakes in tests.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier implements Notifier over the Telegram Bot API.
type TelegramNotifier struct {
	api          botClient
	log          zerolog.Logger
	textTimeout  time.Duration
	mediaTimeout time.Duration
}

// NewTelegram wraps an authorized bot client with the configured send
// timeouts.
func NewTelegram(api botClient, cfg config.NotifierConfig, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		api:          api,
		log:          log,
		textTimeout:  cfg.TextTimeout,
		mediaTimeout: cfg.MediaTimeout,
	}
}

// SendText delivers a plain text message within the text timeout.
func (n *TelegramNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	return n.send(ctx, n.textTimeout, chatID, msg)
}

// SendPhoto delivers one image within the media timeout. FileID is
// preferred when set; otherwise Bytes is uploaded.
func (n *TelegramNotifier) SendPhoto(ctx context.Context, chatID int64, photo Photo) error {
	var file tgbotapi.RequestFileData
	if photo.FileID != "" {
		file = tgbotapi.FileID(photo.FileID)
	} else {
		file = tgbotapi.FileBytes{Name: photo.Name, Bytes: photo.Bytes}
	}

	msg := tgbotapi.NewPhoto(chatID, file)
	msg.Caption = photo.Caption
	if photo.Button != nil {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(photo.Button.Label, photo.Button.Data),
			),
		)
	}
	return n.send(ctx, n.mediaTimeout, chatID, msg)
}

// send runs one Telegram call under a deadline. The underlying client has
// no context support, so the call runs in a goroutine and a timeout is
// reported as a failed send; the stray goroutine ends when the client's own
// HTTP timeout fires.
func (n *TelegramNotifier) send(ctx context.Context, timeout time.Duration, chatID int64, c tgbotapi.Chattable) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(c)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			n.log.Warn().Int64("chat_id", chatID).Err(err).Msg("telegram send failed")
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		n.log.Warn().Int64("chat_id", chatID).Dur("timeout", timeout).Msg("telegram send timed out")
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

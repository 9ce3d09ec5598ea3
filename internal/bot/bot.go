// Package bot implements the requester-facing Telegram surface.
//
// The bot is a thin conversation layer: it turns chat events into workflow
// calls and renders the results. All state-machine guards live in the
// services layer; the bot only tracks which piece of input it is waiting for
// per chat, in an in-memory session store.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/vuelospro/go-flight-desk/internal/metrics"
	"github.com/vuelospro/go-flight-desk/internal/services"
	"github.com/vuelospro/go-flight-desk/internal/session"
	"github.com/vuelospro/go-flight-desk/internal/textparse"
)

// Reply-keyboard labels. The quote notification sent by the workflow refers
// to the "Send payment" button by name, so these strings are load-bearing.
const (
	menuFlightDetails = "Flight details"
	menuSendPayment   = "Send payment"
	menuSupport       = "Support"
)

// Workflow is the slice of the workflow service the bot drives.
type Workflow interface {
	Submit(ctx context.Context, ownerChatID int64, ownerHandle, description, referencePhotoID string) (*services.TransitionResult, error)
	SubmitPaymentProof(ctx context.Context, id uint, proofPhotoID string) (*services.TransitionResult, error)
	ConfirmPayment(ctx context.Context, id uint) (*services.TransitionResult, error)
}

// chatAPI is the slice of *tgbotapi.BotAPI the bot needs. Request covers
// callback-query acknowledgements, which have no message result.
type chatAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Options carries the chat-surface configuration.
type Options struct {
	// OperatorChatID is the only chat allowed to press confirm-payment
	// buttons.
	OperatorChatID int64
	// SupportHandle is the operator's public username, without '@'.
	SupportHandle string
	// PaymentDetails is the bank/transfer text shown before proof upload.
	PaymentDetails string
}

// Bot routes Telegram updates into the workflow.
type Bot struct {
	api      chatAPI
	workflow Workflow
	sessions *session.Store
	opts     Options
	log      zerolog.Logger
}

// New builds a Bot over an authorized API client.
func New(api chatAPI, workflow Workflow, sessions *session.Store, opts Options, log zerolog.Logger) *Bot {
	return &Bot{
		api:      api,
		workflow: workflow,
		sessions: sessions,
		opts:     opts,
		log:      log,
	}
}

// Run consumes updates until the channel closes or the context is cancelled.
// The caller owns the channel; closing it (via StopReceivingUpdates) is the
// clean shutdown path.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches one update. Exported so the update loop and tests
// share the same entry point.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		metrics.BotUpdates.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message == nil:
		// Edits, channel posts and other update kinds are not part of the
		// conversation flow.
	case u.Message.IsCommand():
		metrics.BotUpdates.WithLabelValues("command").Inc()
		b.handleCommand(ctx, u.Message)
	case len(u.Message.Photo) > 0:
		metrics.BotUpdates.WithLabelValues("photo").Inc()
		b.handlePhoto(ctx, u.Message)
	default:
		metrics.BotUpdates.WithLabelValues("message").Inc()
		b.handleText(ctx, u.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sessions.Reset(chatID)
		b.sendMenu(chatID,
			"Welcome to the flight desk.\n\n"+
				"Use \""+menuFlightDetails+"\" to request a flight, "+
				"\""+menuSendPayment+"\" once you have a quote, "+
				"or \""+menuSupport+"\" to reach an operator.")

	case "cancel":
		b.sessions.Reset(chatID)
		b.sendMenu(chatID, "Cancelled. Pick an option below when you are ready.")

	case "skip":
		st := b.sessions.Get(chatID)
		if st.Step != session.StepAwaitingReferencePhoto {
			b.send(chatID, "Nothing to skip right now.")
			return
		}
		b.submit(ctx, msg, st.Description, "")

	default:
		b.send(chatID, "Unknown command. Use the menu buttons below, or /cancel to start over.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch text {
	case menuFlightDetails:
		b.sessions.Set(chatID, session.State{Step: session.StepAwaitingDescription})
		b.send(chatID,
			"Send your flight details in one message: origin, destination and "+
				"travel date (dd-mm-yyyy), plus anything else we should know.")
		return

	case menuSendPayment:
		b.sessions.Set(chatID, session.State{Step: session.StepAwaitingPaymentRequestID})
		reply := "Payment instructions:\n" + b.opts.PaymentDetails +
			"\n\nOnce paid, send me the request number you are paying for."
		if b.opts.PaymentDetails == "" {
			reply = "Send me the request number you are paying for."
		}
		b.send(chatID, reply)
		return

	case menuSupport:
		if b.opts.SupportHandle != "" {
			b.send(chatID, fmt.Sprintf("For any question, contact @%s directly.", b.opts.SupportHandle))
		} else {
			b.send(chatID, "An operator will contact you shortly.")
		}
		return
	}

	st := b.sessions.Get(chatID)
	switch st.Step {
	case session.StepAwaitingDescription:
		if _, ok := textparse.TravelDate(text); !ok {
			b.send(chatID,
				"I could not detect a travel date in that message. "+
					"You can continue, but reminders will not be scheduled for this request.")
		}
		st.Step = session.StepAwaitingReferencePhoto
		st.Description = text
		b.sessions.Set(chatID, st)
		b.send(chatID, "Got it. Now send a screenshot of the flight you want, or /skip if you have none.")

	case session.StepAwaitingPaymentRequestID:
		id, err := strconv.ParseUint(text, 10, 64)
		if err != nil || id == 0 {
			b.send(chatID, "That does not look like a request number. Send just the number, e.g. 42.")
			return
		}
		st.Step = session.StepAwaitingProofPhoto
		st.PaymentRequestID = uint(id)
		b.sessions.Set(chatID, st)
		b.send(chatID, fmt.Sprintf("Now send a photo of the payment receipt for request %d.", id))

	case session.StepAwaitingReferencePhoto:
		b.send(chatID, "I need a photo here. Send the flight screenshot, or /skip.")

	case session.StepAwaitingProofPhoto:
		b.send(chatID, "I need a photo of the receipt to continue, or /cancel to start over.")

	default:
		b.sendMenu(chatID, "Pick an option below.")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	fileID := largestPhotoID(msg.Photo)

	st := b.sessions.Get(chatID)
	switch st.Step {
	case session.StepAwaitingReferencePhoto:
		b.submit(ctx, msg, st.Description, fileID)

	case session.StepAwaitingProofPhoto:
		id := st.PaymentRequestID
		_, err := b.workflow.SubmitPaymentProof(ctx, id, fileID)
		switch {
		case err == nil:
			b.sessions.Reset(chatID)
			b.send(chatID, fmt.Sprintf(
				"Receipt for request %d received. An operator will validate your payment shortly.", id))
		case errors.Is(err, services.ErrRequestNotFound):
			b.send(chatID, fmt.Sprintf(
				"Request %d was not found. Check the number and send the receipt again.", id))
		case errors.Is(err, services.ErrWrongState):
			b.sessions.Reset(chatID)
			b.send(chatID, fmt.Sprintf(
				"Request %d is not awaiting payment. If you already sent a receipt, it is being validated.", id))
		default:
			b.log.Error().Int64("chat_id", chatID).Uint("request_id", id).Err(err).
				Msg("payment proof submission failed")
			b.send(chatID, "Something went wrong recording your receipt. Please try again in a moment.")
		}

	default:
		b.send(chatID, "Tap \""+menuFlightDetails+"\" first and I will ask for a screenshot at the right moment.")
	}
}

// submit finishes the request flow, with or without a reference photo.
func (b *Bot) submit(ctx context.Context, msg *tgbotapi.Message, description, photoID string) {
	chatID := msg.Chat.ID

	res, err := b.workflow.Submit(ctx, chatID, userHandle(msg.From), description, photoID)
	switch {
	case errors.Is(err, services.ErrEmptyDescription):
		b.sessions.Set(chatID, session.State{Step: session.StepAwaitingDescription})
		b.send(chatID, "The flight details are missing. Send them in one message first.")
		return
	case err != nil:
		b.log.Error().Int64("chat_id", chatID).Err(err).Msg("submission failed")
		b.send(chatID, "Something went wrong creating your request. Please try again in a moment.")
		return
	}

	b.sessions.Reset(chatID)
	b.sendMenu(chatID, fmt.Sprintf(
		"Request %d received. An operator will review it and send you a quote here.", res.Request.ID))
}

// handleCallback processes the operator-side confirm-payment shortcut. The
// guard in the workflow is strict, so a button pressed after the record moved
// on reports a conflict rather than re-confirming.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	id, ok := services.ParseConfirmCallback(cq.Data)
	if !ok {
		b.answerCallback(cq.ID, "Unrecognized action.")
		return
	}
	if cq.Message == nil || cq.Message.Chat.ID != b.opts.OperatorChatID {
		b.log.Warn().Str("data", cq.Data).Msg("confirm callback from outside the operator chat")
		b.answerCallback(cq.ID, "Not allowed.")
		return
	}

	_, err := b.workflow.ConfirmPayment(ctx, id)
	switch {
	case err == nil:
		b.answerCallback(cq.ID, fmt.Sprintf("Payment for request %d confirmed.", id))
		b.send(b.opts.OperatorChatID, fmt.Sprintf("Payment for request %d confirmed. Ready for boarding passes.", id))
	case errors.Is(err, services.ErrRequestNotFound):
		b.answerCallback(cq.ID, fmt.Sprintf("Request %d no longer exists.", id))
	case errors.Is(err, services.ErrWrongState):
		b.answerCallback(cq.ID, fmt.Sprintf("Request %d is not awaiting validation.", id))
	default:
		b.log.Error().Uint("request_id", id).Err(err).Msg("callback payment confirmation failed")
		b.answerCallback(cq.ID, "Confirmation failed, try again.")
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Warn().Err(err).Msg("callback answer failed")
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn().Int64("chat_id", chatID).Err(err).Msg("bot send failed")
	}
}

// sendMenu sends a text with the persistent reply keyboard attached.
func (b *Bot) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = menuKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Int64("chat_id", chatID).Err(err).Msg("bot send failed")
	}
}

func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuFlightDetails),
			tgbotapi.NewKeyboardButton(menuSendPayment),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuSupport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// largestPhotoID picks the biggest rendition Telegram offers for a photo.
func largestPhotoID(sizes []tgbotapi.PhotoSize) string {
	best := ""
	area := -1
	for _, s := range sizes {
		if a := s.Width * s.Height; a > area {
			area = a
			best = s.FileID
		}
	}
	return best
}

// userHandle extracts the public username, empty when the account has none.
func userHandle(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.UserName
}

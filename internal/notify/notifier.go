// Package notify is the outward messaging gateway: it delivers texts and
// photos to a single chat identity over Telegram. Sends are synchronous and
// best effort with bounded timeouts; a failure here is reported to the
// caller as a notification failure, distinct from any store failure, and is
// never retried by this package.
package notify

import "context"

// Button is an optional inline action attached to a photo, e.g. the
// operator-side "confirm payment" shortcut on an incoming proof. Data is an
// opaque callback payload the chat surface resolves back to an operation.
type Button struct {
	Label string
	Data  string
}

// Photo is one image to deliver. Exactly one of FileID and Bytes should be
// set: FileID re-sends media Telegram already hosts (photos the bot
// received), Bytes uploads new content (dashboard attachments).
type Photo struct {
	FileID  string
	Bytes   []byte
	Name    string
	Caption string
	Button  *Button
}

// Notifier sends a message to one chat identity. Implementations must bound
// every call with a timeout so a slow transport surfaces as a failed send,
// never as a hang.
type Notifier interface {
	// SendText delivers a plain text message.
	SendText(ctx context.Context, chatID int64, text string) error

	// SendPhoto delivers one image with an optional caption and action button.
	SendPhoto(ctx context.Context, chatID int64, photo Photo) error
}

package notifier

import "context"

// TextNotifier sends a preformatted text message.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

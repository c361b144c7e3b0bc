package notify

import (
	"context"
	"errors"
	"log"
)

// Message is a rendered notification addressed to one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to operators.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to a logger instead of delivering them.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *log.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, errors.New("log notifier: nil logger")
	}
	return &LogNotifier{logger: logger}, nil
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("log notifier: empty recipient")
	}
	n.logger.Printf("notify to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

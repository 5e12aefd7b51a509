package mail

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Notifier delivers security notices to principals. Delivery is best-effort;
// callers log failures and move on.
type Notifier interface {
	Send(message *Message) error
}

// NullNotifier drops every message. Used when no mail backend is configured.
type NullNotifier struct{}

func (NullNotifier) Send(message *Message) error {
	return nil
}

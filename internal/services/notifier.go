package services

// Notifier is told whenever something that feeds a user's blocking state
// changes. Implementations must not block the caller.
type Notifier interface {
	Publish(userID string)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

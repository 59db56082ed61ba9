package service

// Notifier pushes queue and rule events to connected supervisor clients.
// Implemented by the websocket hub; NopNotifier serves tests and the CLI.
type Notifier interface {
	Broadcast(event string, payload interface{})
}

type NopNotifier struct{}

func (NopNotifier) Broadcast(string, interface{}) {}

// Event names pushed over the websocket.
const (
	EventQueueUpdated  = "queue_updated"
	EventRulePromoted  = "rule_promoted"
	EventRuleRevoked   = "rule_revoked"
	EventOrderBlocked  = "order_blocked"
	EventOrderReleased = "order_released"
)

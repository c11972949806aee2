package txlog

// MessageBus is the outbound event stream of the log. Transport layers
// (NATS) implement it; the log does not know who is listening.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// TopicTransactions carries every append and status change as JSON.
const TopicTransactions = "acquisim.transactions"

// NopBus drops every event. Used in tests and bus-less deployments.
type NopBus struct{}

func (NopBus) Publish(string, []byte) error { return nil }

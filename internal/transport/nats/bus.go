package nats

import (
	"github.com/nats-io/nats.go"

	"acquisim/internal/txlog"
)

// Bus publishes transaction-log events to NATS, giving observers (the
// management UI, test harnesses) a live feed of every ledger movement.
type Bus struct {
	nc *nats.Conn
}

var _ txlog.MessageBus = (*Bus)(nil)

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Publish(topic string, data []byte) error {
	return b.nc.Publish(topic, data)
}

package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"
)

// connectNats dials the NATS server with exponential backoff, so the
// simulator survives being started before its broker in a compose stack.
func connectNats(ctx context.Context, url string) (*nats.Conn, error) {
	var nc *nats.Conn

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := nats.Connect(url)
		if err != nil {
			slog.Warn("nats connect failed, retrying", "url", url, "error", err)
			return retry.RetryableError(err)
		}
		nc = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nc, nil
}

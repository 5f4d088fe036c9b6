package changefeed

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/strandapp/strand/model"
)

const maxSubscribeRetries = 5

// Subscription is a caller-managed handle for one filtered table stream.
// Unsubscribe cancels the stream; the Events channel closes shortly after.
// A consumer that rebuilds its filter must Unsubscribe the old handle first
// so a stale stream can never race a fresh one.
type Subscription struct {
	Table  string
	Events <-chan model.ChangeEvent
	cancel context.CancelFunc
}

func (s *Subscription) Unsubscribe() {
	if s != nil {
		s.cancel()
	}
}

// NewSubscription opens a cancellable filtered stream on the table.
func (b *Bus) NewSubscription(parent context.Context, table string, filter Filter) (*Subscription, error) {
	ctx, cancel := context.WithCancel(parent)
	events, err := b.Subscribe(ctx, table, filter)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Subscription{Table: table, Events: events, cancel: cancel}, nil
}

// NewSubscriptionWithRetry opens a subscription, retrying transient failures
// with bounded exponential backoff before giving up.
func (b *Bus) NewSubscriptionWithRetry(parent context.Context, table string, filter Filter) (*Subscription, error) {
	var sub *Subscription
	operation := func() error {
		s, err := b.NewSubscription(parent, table, filter)
		if err != nil {
			return err
		}
		sub = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSubscribeRetries), parent)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return sub, nil
}

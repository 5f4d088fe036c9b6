package changefeed

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/strandapp/strand/model"
	Logger "github.com/strandapp/strand/utils/log"
)

const topicPrefix = "changefeed_"

// Filter decides whether a subscriber receives an event. A nil filter
// receives everything on the table.
type Filter func(model.ChangeEvent) bool

// Bus is the in-process change feed. Stores publish one ChangeEvent per
// committed row mutation; consumers subscribe per table with a row filter.
// For now we use a golang channel implementation for the event bus, but
// later when needed we could substitute it with a Kafka-based one.
type Bus struct {
	inner *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		inner: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            100,
				BlockPublishUntilSubscriberAck: false,
			},
			watermill.NewStdLogger(false, false),
		),
	}
}

func topicFor(table string) string {
	return topicPrefix + table
}

// Publish pushes a single change event onto the table's topic. Events are
// delivered to subscribers in publish order per topic.
func (b *Bus) Publish(event model.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.inner.Publish(topicFor(event.Table), message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe returns a stream of events on the given table matching filter.
// The subscription lives until ctx is canceled, at which point the returned
// channel is closed. Events that fail to decode are dropped with a log line
// rather than wedging the stream.
func (b *Bus) Subscribe(ctx context.Context, table string, filter Filter) (<-chan model.ChangeEvent, error) {
	messages, err := b.inner.Subscribe(ctx, topicFor(table))
	if err != nil {
		return nil, err
	}

	out := make(chan model.ChangeEvent, 1)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()

			var event model.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				Logger.Log.Error("cannot decode change event, dropping: ", err)
				continue
			}
			if filter != nil && !filter(event) {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close tears down the bus and all its subscriptions.
func (b *Bus) Close() error {
	return b.inner.Close()
}

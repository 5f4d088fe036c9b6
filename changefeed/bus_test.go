package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/strandapp/strand/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, model.TableMessages, nil)
	require.Nil(t, err)

	// Go channel receive and send cannot be in the same routine, otherwise it
	// will cause deadlock. Thus we need to asynchronously publish.
	go func() {
		msg := model.Message{Id: "m1", ChatID: "c1", AuthorID: "u1"}
		assert.Nil(t, bus.Publish(model.NewChangeEvent(model.TableMessages, model.ChangeOpInsert, msg.Id, msg)))
	}()

	select {
	case event := <-events:
		require.Equal(t, model.TableMessages, event.Table)
		require.Equal(t, model.ChangeOpInsert, event.Op)
		require.Equal(t, "m1", event.RowID)

		var row model.Message
		require.Nil(t, event.DecodePayload(&row))
		require.Equal(t, "c1", row.ChatID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestBusSubscribeFilter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onlyChatTwo := func(event model.ChangeEvent) bool {
		var row model.Message
		if err := event.DecodePayload(&row); err != nil {
			return false
		}
		return row.ChatID == "c2"
	}

	events, err := bus.Subscribe(ctx, model.TableMessages, onlyChatTwo)
	require.Nil(t, err)

	go func() {
		for _, chatId := range []string{"c1", "c2", "c3"} {
			msg := model.Message{Id: "m-" + chatId, ChatID: chatId}
			assert.Nil(t, bus.Publish(model.NewChangeEvent(model.TableMessages, model.ChangeOpInsert, msg.Id, msg)))
		}
	}()

	select {
	case event := <-events:
		require.Equal(t, "m-c2", event.RowID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestSubscriptionUnsubscribeClosesStream(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.NewSubscription(context.Background(), model.TableChatMembers, nil)
	require.Nil(t, err)

	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events:
		require.False(t, ok, "events channel should be closed after unsubscribe")
	case <-time.After(5 * time.Second):
		t.Fatal("events channel did not close after unsubscribe")
	}
}

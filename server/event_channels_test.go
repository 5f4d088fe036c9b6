package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strandapp/strand/model"
)

func TestEventChannelCleanupOnContextCancel(t *testing.T) {
	channels := NewEventChannels()
	ctx, cancel := context.WithCancel(context.Background())

	channels.AddConnection(ctx, "user_1")
	assert.Equal(t, 1, channels.ActiveConnectionCount())

	cancel()

	require.Eventually(t, func() bool {
		return channels.ActiveConnectionCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEventChannelMultipleDevices(t *testing.T) {
	channels := NewEventChannels()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	ctx3, cancel3 := context.WithCancel(context.Background())

	// User 1 signed in on 2 devices, user 2 on a single one.
	channels.AddConnection(ctx1, "user_1")
	channels.AddConnection(ctx2, "user_1")
	channels.AddConnection(ctx3, "user_2")

	assert.Equal(t, 3, channels.ActiveConnectionCount())

	cancel1()
	cancel2()
	cancel3()

	require.Eventually(t, func() bool {
		return channels.ActiveConnectionCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPushToUserReachesAllDevices(t *testing.T) {
	channels := NewEventChannels()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, _ := channels.AddConnection(ctx, "user_1")
	ch2, _ := channels.AddConnection(ctx, "user_1")
	other, _ := channels.AddConnection(ctx, "user_2")

	event := model.NewChangeEvent(
		model.TableMessages, model.ChangeOpInsert, "m1", model.Message{Id: "m1", ChatID: "c1"})
	require.NoError(t, channels.PushToUser(event, "user_1"))

	assert.Equal(t, "m1", (<-ch1).RowID)
	assert.Equal(t, "m1", (<-ch2).RowID)
	assert.Empty(t, other)
}

func TestPushToUserWithoutConnection(t *testing.T) {
	channels := NewEventChannels()
	event := model.NewChangeEvent(
		model.TableMessages, model.ChangeOpInsert, "m1", model.Message{Id: "m1"})
	assert.Error(t, channels.PushToUser(event, "nobody"))
}

func TestPushToAll(t *testing.T) {
	channels := NewEventChannels()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, _ := channels.AddConnection(ctx, "user_1")
	ch2, _ := channels.AddConnection(ctx, "user_2")

	event := model.NewChangeEvent(
		model.TableStories, model.ChangeOpInsert, "s1", model.Story{Id: "s1"})
	channels.PushToAll(event)

	assert.Equal(t, "s1", (<-ch1).RowID)
	assert.Equal(t, "s1", (<-ch2).RowID)
}

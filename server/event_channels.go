// Package server exposes the sync service over REST and a websocket event
// stream.
package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
)

// EventChannels tracks every connected device's event channel. All internal
// state is managed through its receivers.
type EventChannels struct {
	// connectionMap maps from user id to the user's active channels, keyed
	// by channel id so removal is O(1). A user's top-level entry is deleted
	// once all of their channels are closed. Each device gets its own
	// channel; devices never share one.
	connectionMap map[string]map[string]chan model.ChangeEvent

	// Adding/removing a connection grabs the write lock, pushing an event
	// grabs the read lock.
	mu sync.RWMutex
}

func NewEventChannels() *EventChannels {
	return &EventChannels{
		connectionMap: make(map[string]map[string]chan model.ChangeEvent),
	}
}

// cleanUp removes a single connection when its context terminates. When a
// user's last connection goes away their top-level entry is removed too.
func (ec *EventChannels) cleanUp(ctx context.Context, chId string, userId string) {
	<-ctx.Done()

	ec.mu.Lock()
	defer ec.mu.Unlock()

	delete(ec.connectionMap[userId], chId)
	if len(ec.connectionMap[userId]) == 0 {
		delete(ec.connectionMap, userId)
	}
}

// AddConnection registers a channel for the user, bound to ctx.
func (ec *EventChannels) AddConnection(ctx context.Context, userId string) (chan model.ChangeEvent, string) {
	chId := "event_channel_" + uuid.New().String()
	ch := make(chan model.ChangeEvent, 16)

	ec.mu.Lock()
	defer ec.mu.Unlock()

	if _, ok := ec.connectionMap[userId]; !ok {
		ec.connectionMap[userId] = make(map[string]chan model.ChangeEvent)
	}
	ec.connectionMap[userId][chId] = ch

	go ec.cleanUp(ctx, chId, userId)

	return ch, chId
}

func (ec *EventChannels) ActiveConnectionCount() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	count := 0
	for _, mp := range ec.connectionMap {
		count += len(mp)
	}
	return count
}

// PushToUser delivers the event to all of the user's connections. A
// connection that has fallen behind gets the event dropped rather than
// blocking the push for everyone else.
func (ec *EventChannels) PushToUser(event model.ChangeEvent, userId string) error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	userChannels, ok := ec.connectionMap[userId]
	if !ok {
		return errors.New("no active connection for user: " + userId)
	}
	for _, ch := range userChannels {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// PushToAll delivers the event to every active connection.
func (ec *EventChannels) PushToAll(event model.ChangeEvent) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	for _, userChannels := range ec.connectionMap {
		for _, ch := range userChannels {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

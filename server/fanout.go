package server

import (
	"context"

	"github.com/strandapp/strand/changefeed"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"github.com/strandapp/strand/utils/log"
)

// Fanout routes change feed events to connected devices. Chat scoped events
// go only to the chat's members; social events go to everyone connected and
// clients filter by their follow graph.
type Fanout struct {
	name     string
	bus      *changefeed.Bus
	channels *EventChannels
	chats    store.ChatStore
}

func NewFanout(name string, bus *changefeed.Bus, channels *EventChannels, chats store.ChatStore) *Fanout {
	return &Fanout{
		name:     name,
		bus:      bus,
		channels: channels,
		chats:    chats,
	}
}

func (f *Fanout) Name() string {
	return f.name
}

func (f *Fanout) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tables := []string{
		model.TableChatMembers,
		model.TableMessages,
		model.TableMessageReceipts,
		model.TableStories,
		model.TableStoryViews,
		model.TablePosts,
		model.TablePostLikes,
	}

	merged := make(chan model.ChangeEvent)
	for _, table := range tables {
		events, err := f.bus.Subscribe(ctx, table, nil)
		if err != nil {
			return err
		}
		go func() {
			for event := range events {
				select {
				case merged <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-merged:
			f.route(ctx, event)
		}
	}
}

func (f *Fanout) route(ctx context.Context, event model.ChangeEvent) {
	switch event.Table {
	case model.TableChatMembers:
		var member model.ChatMember
		if err := event.DecodePayload(&member); err != nil {
			log.Log.Errorf("cannot decode chat member event %s: %v", event.RowID, err)
			return
		}
		// The user may simply have no device connected.
		_ = f.channels.PushToUser(event, member.UserID)

	case model.TableMessages:
		var message model.Message
		if err := event.DecodePayload(&message); err != nil {
			log.Log.Errorf("cannot decode message event %s: %v", event.RowID, err)
			return
		}
		f.pushToChatMembers(ctx, event, message.ChatID)

	case model.TableMessageReceipts:
		var receipt model.MessageReceipt
		if err := event.DecodePayload(&receipt); err != nil {
			log.Log.Errorf("cannot decode receipt event %s: %v", event.RowID, err)
			return
		}
		f.pushToChatMembers(ctx, event, receipt.ChatID)

	default:
		f.channels.PushToAll(event)
	}
}

func (f *Fanout) pushToChatMembers(ctx context.Context, event model.ChangeEvent, chatId string) {
	chat, err := f.chats.GetChat(ctx, chatId, 0)
	if err != nil {
		log.Log.Errorf("cannot resolve chat %s for fanout: %v", chatId, err)
		return
	}
	for _, member := range chat.Members {
		_ = f.channels.PushToUser(event, member.Id)
	}
}

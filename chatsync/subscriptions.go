package chatsync

import (
	"context"
	"time"

	"github.com/strandapp/strand/model"
	Logger "github.com/strandapp/strand/utils/log"
)

// subscribeMemberships opens the chats_users stream for this user. The pump
// resolves each membership row into the full chat (with its trailing
// messages) before handing it to the loop, mirroring the fetch-by-id step of
// the ingestion protocol.
func (s *Syncer) subscribeMemberships(ctx context.Context) error {
	filter := func(event model.ChangeEvent) bool {
		var row model.ChatMember
		if err := event.DecodePayload(&row); err != nil {
			return false
		}
		return row.UserID == s.userId
	}

	sub, err := s.bus.NewSubscriptionWithRetry(ctx, model.TableChatMembers, filter)
	if err != nil {
		return err
	}

	go func() {
		for event := range sub.Events {
			var row model.ChatMember
			if err := event.DecodePayload(&row); err != nil {
				Logger.Log.Error("cannot decode membership event: ", err)
				continue
			}
			full, err := s.chats.GetChat(ctx, row.ChatID, s.messageLimit)
			if err != nil {
				Logger.Log.Error("cannot fetch chat ", row.ChatID, ": ", err)
				continue
			}
			s.enqueue(ctx, chatInserted{chat: full})
		}
	}()
	return nil
}

// refreshMessageSubscription runs the subscription-refresh protocol: cancel
// the prior message stream, rebuild the filter from the current chat id set,
// resubscribe, then resync any messages committed while no stream was
// attached (everything newer than since). The resync closes the gap between
// cancel and resubscribe that would otherwise silently drop events. The
// caller passes the watermark as it stood before the trigger was folded in;
// a watermark already advanced over the triggering chat's messages would
// skip right past the gap.
func (s *Syncer) refreshMessageSubscription(ctx context.Context, state *syncState, since time.Time) error {
	state.msgSub.Unsubscribe()

	chatIds := map[string]bool{}
	ids := []string{}
	for id := range state.byId {
		chatIds[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		state.msgSub = nil
		return nil
	}

	filter := func(event model.ChangeEvent) bool {
		var row model.Message
		if err := event.DecodePayload(&row); err != nil {
			return false
		}
		return chatIds[row.ChatID]
	}

	sub, err := s.bus.NewSubscriptionWithRetry(ctx, model.TableMessages, filter)
	if err != nil {
		return err
	}
	state.msgSub = sub

	go func() {
		for event := range sub.Events {
			var row model.Message
			if err := event.DecodePayload(&row); err != nil {
				Logger.Log.Error("cannot decode message event: ", err)
				continue
			}
			// Fetch the full message to resolve receipts and author fields
			// the raw change payload may not carry.
			full, err := s.messages.GetMessage(ctx, row.Id)
			if err != nil {
				Logger.Log.Error("cannot fetch message ", row.Id, ": ", err)
				continue
			}
			s.enqueue(ctx, messageInserted{message: full})
		}
	}()

	go func() {
		missed, err := s.messages.ListMessagesSince(ctx, ids, since)
		if err != nil {
			Logger.Log.Error("resync after resubscribe failed: ", err)
			return
		}
		if len(missed) > 0 {
			s.enqueue(ctx, messagesResynced{messages: missed})
		}
	}()
	return nil
}

func (s *Syncer) enqueue(ctx context.Context, act action) {
	select {
	case s.actions <- act:
	case <-ctx.Done():
	}
}

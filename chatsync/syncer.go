// Package chatsync maintains one user's in-memory chat list against the
// realtime change feed. A single goroutine owns the cache and processes one
// action at a time; background tasks (subscription pumps, fetches, marking)
// communicate back through actions and never touch the state directly. The
// cache is the single source of truth: list rows and open detail views all
// derive from snapshots of it, so a message can never land in one copy and
// miss another.
package chatsync

import (
	"context"
	"time"

	"github.com/jinzhu/copier"
	"github.com/strandapp/strand/changefeed"
	"github.com/strandapp/strand/chat"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	Logger "github.com/strandapp/strand/utils/log"
)

const actionBuffer = 16

type Syncer struct {
	userId       string
	messageLimit int

	bus      *changefeed.Bus
	chats    store.ChatStore
	messages store.MessageStore
	service  *chat.Service

	actions chan action
}

// Actions folded into the state by the run loop.
type action interface{ isAction() }

type chatInserted struct{ chat *model.Chat }
type messageInserted struct{ message *model.Message }
type messagesResynced struct{ messages []*model.Message }
type receiptsMerged struct{ receipts []model.MessageReceipt }
type snapshotRequest struct{ reply chan []*model.Chat }

func (chatInserted) isAction()     {}
func (messageInserted) isAction()  {}
func (messagesResynced) isAction() {}
func (receiptsMerged) isAction()   {}
func (snapshotRequest) isAction()  {}

// syncState is owned exclusively by the run loop.
type syncState struct {
	chats    []*model.Chat // newest chat first
	byId     map[string]*model.Chat
	seenMsgs map[string]bool
	lastSeen time.Time // resync watermark: latest message creation time observed

	msgSub *changefeed.Subscription
}

func NewSyncer(userId string, bus *changefeed.Bus, chats store.ChatStore, messages store.MessageStore, service *chat.Service) *Syncer {
	return &Syncer{
		userId:       userId,
		messageLimit: chat.DefaultMessageLimit,
		bus:          bus,
		chats:        chats,
		messages:     messages,
		service:      service,
		actions:      make(chan action, actionBuffer),
	}
}

func (s *Syncer) Name() string {
	return "chat_syncer_" + s.userId
}

// RunModule loads the initial chat list, wires the membership and message
// subscriptions and then folds actions until ctx is done.
func (s *Syncer) RunModule(ctx context.Context) error {
	initial, err := s.chats.ListChatsForUser(ctx, s.userId, s.messageLimit)
	if err != nil {
		return err
	}

	state := &syncState{
		byId:     map[string]*model.Chat{},
		seenMsgs: map[string]bool{},
	}
	for _, c := range initial {
		state.chats = append(state.chats, c)
		state.byId[c.Id] = c
		for _, m := range c.Messages {
			state.seenMsgs[m.Id] = true
			if m.CreatedAt.After(state.lastSeen) {
				state.lastSeen = m.CreatedAt
			}
		}
	}

	if err := s.subscribeMemberships(ctx); err != nil {
		return err
	}
	if err := s.refreshMessageSubscription(ctx, state, state.lastSeen); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			state.msgSub.Unsubscribe()
			return nil
		case act := <-s.actions:
			s.handle(ctx, state, act)
		}
	}
}

func (s *Syncer) handle(ctx context.Context, state *syncState, act action) {
	switch a := act.(type) {
	case chatInserted:
		if _, known := state.byId[a.chat.Id]; known {
			return
		}
		// The resync after the refresh must look back from where the stream
		// stood before this chat arrived. Folding the new chat's messages
		// first would push the watermark past anything dropped in the gap
		// on the existing chats.
		watermark := state.lastSeen
		state.chats = append([]*model.Chat{a.chat}, state.chats...)
		state.byId[a.chat.Id] = a.chat
		for _, m := range a.chat.Messages {
			state.seenMsgs[m.Id] = true
			if m.CreatedAt.After(state.lastSeen) {
				state.lastSeen = m.CreatedAt
			}
		}
		// The message filter predicate is built from the chat id set, so a
		// new chat forces a subscription refresh.
		if err := s.refreshMessageSubscription(ctx, state, watermark); err != nil {
			Logger.Log.Error("message subscription refresh failed: ", err)
		}

	case messageInserted:
		s.foldMessage(state, a.message)

	case messagesResynced:
		for _, m := range a.messages {
			s.foldMessage(state, m)
		}

	case receiptsMerged:
		byChat := map[string][]model.MessageReceipt{}
		for _, receipt := range a.receipts {
			byChat[receipt.ChatID] = append(byChat[receipt.ChatID], receipt)
		}
		for chatId, receipts := range byChat {
			if c, ok := state.byId[chatId]; ok {
				chat.MergeReceipts(c.Messages, receipts)
			}
		}

	case snapshotRequest:
		snapshot := []*model.Chat{}
		if err := copier.CopyWithOption(&snapshot, &state.chats, copier.Option{DeepCopy: true}); err != nil {
			Logger.Log.Error("snapshot copy failed: ", err)
		}
		a.reply <- snapshot
	}
}

// foldMessage inserts the message into its chat exactly once, keeping
// messages ordered oldest first, and advances the resync watermark. A
// resynced message can be older than one the fresh subscription already
// delivered, so a plain append is not enough.
func (s *Syncer) foldMessage(state *syncState, message *model.Message) {
	if state.seenMsgs[message.Id] {
		return
	}
	c, ok := state.byId[message.ChatID]
	if !ok {
		// Chat not yet visible; its membership event will bring the full
		// chat including this message.
		return
	}
	state.seenMsgs[message.Id] = true
	i := len(c.Messages)
	for i > 0 && c.Messages[i-1].CreatedAt.After(message.CreatedAt) {
		i--
	}
	c.Messages = append(c.Messages, nil)
	copy(c.Messages[i+1:], c.Messages[i:])
	c.Messages[i] = message
	if message.CreatedAt.After(state.lastSeen) {
		state.lastSeen = message.CreatedAt
	}
}

// Snapshot returns a deep copy of the chat list; callers never alias the
// loop's state. Returns nil once ctx is done.
func (s *Syncer) Snapshot(ctx context.Context) []*model.Chat {
	reply := make(chan []*model.Chat, 1)
	select {
	case s.actions <- snapshotRequest{reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case snapshot := <-reply:
		return snapshot
	case <-ctx.Done():
		return nil
	}
}

// MarkChatRead marks the chat read for the syncer's user and folds the newly
// created receipts back into the cache. Returns the created receipts.
func (s *Syncer) MarkChatRead(ctx context.Context, chatId string) ([]model.MessageReceipt, error) {
	created, err := s.service.MarkChatRead(ctx, chatId, s.userId)
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		select {
		case s.actions <- receiptsMerged{receipts: created}:
		case <-ctx.Done():
		}
	}
	return created, nil
}

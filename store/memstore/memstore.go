// Package memstore is the in-memory store implementation. It enforces the
// same uniqueness constraints as the postgres store and publishes the same
// change events, which makes the synchronization engine fully testable
// without a live backend.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
)

var _ store.Store = (*MemStore)(nil)

type MemStore struct {
	mu sync.Mutex

	publisher store.EventPublisher

	users     map[string]*model.User
	following map[string]map[string]bool // userId -> followingId

	chats        map[string]*model.Chat // metadata only, no messages
	chatMembers  map[string][]string    // chatId -> member ids, insert order
	discoveryKey map[string]string      // discovery key -> chatId

	messages       map[string]*model.Message
	messagesByChat map[string][]string // chatId -> message ids, oldest first

	receipts map[string]map[string]model.MessageReceipt // messageId -> readerId

	stories map[string]*model.Story
	views   map[string]map[string]model.StoryView // storyId -> viewerId

	posts    map[string]*model.Post
	comments map[string][]string                  // postId -> comment ids, oldest first
	likes    map[string]map[string]model.PostLike // postId -> userId
	mutes    map[string]map[string]bool           // userId -> postId
}

// New creates an empty store. publisher may be nil when no consumer cares
// about change events.
func New(publisher store.EventPublisher) *MemStore {
	return &MemStore{
		publisher:      publisher,
		users:          map[string]*model.User{},
		following:      map[string]map[string]bool{},
		chats:          map[string]*model.Chat{},
		chatMembers:    map[string][]string{},
		discoveryKey:   map[string]string{},
		messages:       map[string]*model.Message{},
		messagesByChat: map[string][]string{},
		receipts:       map[string]map[string]model.MessageReceipt{},
		stories:        map[string]*model.Story{},
		views:          map[string]map[string]model.StoryView{},
		posts:          map[string]*model.Post{},
		comments:       map[string][]string{},
		likes:          map[string]map[string]model.PostLike{},
		mutes:          map[string]map[string]bool{},
	}
}

func (s *MemStore) publish(event model.ChangeEvent) {
	if s.publisher != nil {
		// Publish must happen outside the store lock: the gochannel bus may
		// block briefly and subscribers may call back into the store.
		s.publisher.Publish(event)
	}
}

// --- ChatStore ---

func (s *MemStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	s.mu.Lock()

	if _, taken := s.discoveryKey[chat.DiscoveryKey]; taken {
		s.mu.Unlock()
		return store.ErrAlreadyExists
	}

	stored := &model.Chat{
		Id:           chat.Id,
		CreatedAt:    chat.CreatedAt,
		DiscoveryKey: chat.DiscoveryKey,
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.chats[chat.Id] = stored
	s.discoveryKey[chat.DiscoveryKey] = chat.Id

	events := []model.ChangeEvent{}
	for _, member := range chat.Members {
		s.chatMembers[chat.Id] = append(s.chatMembers[chat.Id], member.Id)
		row := model.ChatMember{ChatID: chat.Id, UserID: member.Id, CreatedAt: stored.CreatedAt}
		events = append(events, model.NewChangeEvent(
			model.TableChatMembers, model.ChangeOpInsert, chat.Id+"/"+member.Id, row))
	}
	s.mu.Unlock()

	for _, event := range events {
		s.publish(event)
	}
	return nil
}

func (s *MemStore) GetChatByDiscoveryKey(ctx context.Context, key string, messageLimit int) (*model.Chat, error) {
	s.mu.Lock()
	chatId, ok := s.discoveryKey[key]
	s.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetChat(ctx, chatId, messageLimit)
}

func (s *MemStore) GetChat(ctx context.Context, chatId string, messageLimit int) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatId]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.assembleChatLocked(chat, messageLimit), nil
}

func (s *MemStore) ListChatsForUser(ctx context.Context, userId string, messageLimit int) ([]*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := []*model.Chat{}
	for chatId, members := range s.chatMembers {
		for _, id := range members {
			if id == userId {
				chats = append(chats, s.assembleChatLocked(s.chats[chatId], messageLimit))
				break
			}
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// assembleChatLocked builds a detached copy of the chat with members and the
// last messageLimit messages, oldest first.
func (s *MemStore) assembleChatLocked(chat *model.Chat, messageLimit int) *model.Chat {
	out := &model.Chat{
		Id:           chat.Id,
		CreatedAt:    chat.CreatedAt,
		DiscoveryKey: chat.DiscoveryKey,
	}
	for _, memberId := range s.chatMembers[chat.Id] {
		if user, ok := s.users[memberId]; ok {
			out.Members = append(out.Members, s.copyUserLocked(user))
		} else {
			out.Members = append(out.Members, &model.User{Id: memberId})
		}
	}

	ids := s.messagesByChat[chat.Id]
	start := 0
	if messageLimit > 0 && len(ids) > messageLimit {
		start = len(ids) - messageLimit
	}
	for _, messageId := range ids[start:] {
		out.Messages = append(out.Messages, s.copyMessageLocked(messageId))
	}
	return out
}

// --- MessageStore ---

func (s *MemStore) CreateMessage(ctx context.Context, message *model.Message) error {
	s.mu.Lock()
	if _, ok := s.chats[message.ChatID]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	stored := *message
	stored.Receipts = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.messages[message.Id] = &stored
	s.messagesByChat[message.ChatID] = append(s.messagesByChat[message.ChatID], message.Id)
	event := model.NewChangeEvent(model.TableMessages, model.ChangeOpInsert, message.Id, stored)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) GetMessage(ctx context.Context, messageId string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[messageId]; !ok {
		return nil, store.ErrNotFound
	}
	return s.copyMessageLocked(messageId), nil
}

func (s *MemStore) ListMessagesSince(ctx context.Context, chatIds []string, since time.Time) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Message{}
	for _, chatId := range chatIds {
		for _, messageId := range s.messagesByChat[chatId] {
			if s.messages[messageId].CreatedAt.After(since) {
				out = append(out, s.copyMessageLocked(messageId))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) CreateReceipts(ctx context.Context, receipts []model.MessageReceipt) ([]model.MessageReceipt, error) {
	s.mu.Lock()
	created := []model.MessageReceipt{}
	events := []model.ChangeEvent{}
	for _, receipt := range receipts {
		byReader, ok := s.receipts[receipt.MessageID]
		if !ok {
			byReader = map[string]model.MessageReceipt{}
			s.receipts[receipt.MessageID] = byReader
		}
		if _, exists := byReader[receipt.ReaderID]; exists {
			continue
		}
		if receipt.CreatedAt.IsZero() {
			receipt.CreatedAt = time.Now()
		}
		byReader[receipt.ReaderID] = receipt
		created = append(created, receipt)
		events = append(events, model.NewChangeEvent(
			model.TableMessageReceipts, model.ChangeOpInsert, receipt.MessageID+"/"+receipt.ReaderID, receipt))
	}
	s.mu.Unlock()

	for _, event := range events {
		s.publish(event)
	}
	return created, nil
}

func (s *MemStore) copyMessageLocked(messageId string) *model.Message {
	msg := *s.messages[messageId]
	msg.Receipts = []model.MessageReceipt{}
	for _, receipt := range s.receipts[messageId] {
		msg.Receipts = append(msg.Receipts, receipt)
	}
	sort.Slice(msg.Receipts, func(i, j int) bool {
		return msg.Receipts[i].ReaderID < msg.Receipts[j].ReaderID
	})
	return &msg
}

func (s *MemStore) copyUserLocked(user *model.User) *model.User {
	var out model.User
	copier.Copy(&out, user)
	return &out
}

// Package chat implements the chat discovery, messaging and read-receipt
// protocols on top of the store gateways.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	Logger "github.com/strandapp/strand/utils/log"
)

// DefaultMessageLimit is how many trailing messages are hydrated when a chat
// is fetched or discovered.
const DefaultMessageLimit = 20

type Service struct {
	chats    store.ChatStore
	messages store.MessageStore

	marking *markTracker
}

func NewService(chats store.ChatStore, messages store.MessageStore) *Service {
	return &Service{
		chats:    chats,
		messages: messages,
		marking:  newMarkTracker(),
	}
}

// FindOrCreateChat resolves the chat for the given member set, creating it
// exactly once. The discovery key lookup distinguishes three outcomes:
//   - found: reuse the chat.
//   - not found: take the create path.
//   - create lost a race (unique key taken): someone else just created it,
//     re-fetch and reuse theirs.
//
// Any other lookup failure is surfaced, not retried.
func (s *Service) FindOrCreateChat(ctx context.Context, memberIds []string) (*model.Chat, error) {
	key := model.ComputeDiscoveryKey(memberIds)

	chat, err := s.chats.GetChatByDiscoveryKey(ctx, key, DefaultMessageLimit)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, "chat discovery lookup failed")
	}

	fresh := &model.Chat{
		Id:           uuid.New().String(),
		CreatedAt:    time.Now(),
		DiscoveryKey: key,
	}
	for _, memberId := range memberIds {
		fresh.Members = append(fresh.Members, &model.User{Id: memberId})
	}

	err = s.chats.CreateChat(ctx, fresh)
	if errors.Is(err, store.ErrAlreadyExists) {
		Logger.Log.Info("lost chat creation race for key ", key, ", reusing winner")
		return s.chats.GetChatByDiscoveryKey(ctx, key, DefaultMessageLimit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "chat creation failed")
	}
	return s.chats.GetChatByDiscoveryKey(ctx, key, DefaultMessageLimit)
}

// SendMessage appends a message to the chat for the given member set,
// finding or creating the chat first. The author's own read receipt is
// inserted along with the message, so a fresh message always starts with
// readBy = {author}.
func (s *Service) SendMessage(ctx context.Context, authorId string, memberIds []string, text string, mediaUrl string, kind model.MediaKind) (*model.Message, error) {
	chat, err := s.FindOrCreateChat(ctx, memberIds)
	if err != nil {
		return nil, err
	}
	return s.SendMessageToChat(ctx, authorId, chat.Id, text, mediaUrl, kind)
}

// SendMessageToChat appends a message to an already known chat.
func (s *Service) SendMessageToChat(ctx context.Context, authorId string, chatId string, text string, mediaUrl string, kind model.MediaKind) (*model.Message, error) {
	message := &model.Message{
		Id:        uuid.New().String(),
		ChatID:    chatId,
		AuthorID:  authorId,
		CreatedAt: time.Now(),
		Text:      text,
		MediaUrl:  mediaUrl,
		MediaKind: kind,
	}
	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	created, err := s.messages.CreateReceipts(ctx, []model.MessageReceipt{{
		MessageID: message.Id,
		ReaderID:  authorId,
		ChatID:    chatId,
	}})
	if err != nil {
		return nil, errors.Wrap(err, "author receipt insert failed")
	}
	message.Receipts = created
	return message, nil
}

// UnreadCount is the number of messages in the chat whose receipts exclude
// the viewer. It is always recomputed from the messages at hand, never
// cached, so it cannot go stale relative to its input.
func UnreadCount(chat *model.Chat, viewerId string) int {
	count := 0
	for _, message := range chat.Messages {
		if !message.ReadBy(viewerId) {
			count++
		}
	}
	return count
}

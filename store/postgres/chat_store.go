package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"gorm.io/gorm"
)

func (s *PgStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}

	members := []model.ChatMember{}
	for _, member := range chat.Members {
		members = append(members, model.ChatMember{
			ChatID:    chat.Id,
			UserID:    member.Id,
			CreatedAt: chat.CreatedAt,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bare := model.Chat{Id: chat.Id, CreatedAt: chat.CreatedAt, DiscoveryKey: chat.DiscoveryKey}
		if err := tx.Create(&bare).Error; err != nil {
			return err
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return errors.Wrap(err, "create chat failed")
	}

	for _, member := range members {
		s.publish(model.NewChangeEvent(
			model.TableChatMembers, model.ChangeOpInsert, member.ChatID+"/"+member.UserID, member))
	}
	return nil
}

func (s *PgStore) GetChatByDiscoveryKey(ctx context.Context, key string, messageLimit int) (*model.Chat, error) {
	var chat model.Chat
	if err := s.db.WithContext(ctx).
		Preload("Members").
		Where("discovery_key = ?", key).
		First(&chat).Error; err != nil {
		return nil, translateNotFound(err)
	}
	if err := s.loadRecentMessages(ctx, &chat, messageLimit); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *PgStore) GetChat(ctx context.Context, chatId string, messageLimit int) (*model.Chat, error) {
	var chat model.Chat
	if err := s.db.WithContext(ctx).
		Preload("Members").
		Where("id = ?", chatId).
		First(&chat).Error; err != nil {
		return nil, translateNotFound(err)
	}
	if err := s.loadRecentMessages(ctx, &chat, messageLimit); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *PgStore) ListChatsForUser(ctx context.Context, userId string, messageLimit int) ([]*model.Chat, error) {
	var chats []*model.Chat
	if err := s.db.WithContext(ctx).
		Preload("Members").
		Joins("LEFT JOIN chat_members ON chat_members.chat_id = chats.id").
		Where("chat_members.user_id = ?", userId).
		Order("chats.created_at desc").
		Find(&chats).Error; err != nil {
		return nil, errors.Wrap(err, "list chats failed")
	}
	for _, chat := range chats {
		if err := s.loadRecentMessages(ctx, chat, messageLimit); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// loadRecentMessages fills chat.Messages with the last messageLimit messages
// in creation order, receipts resolved. A per-chat query keeps the limit
// semantics simple; chats are fetched with small limits so this stays cheap.
func (s *PgStore) loadRecentMessages(ctx context.Context, chat *model.Chat, messageLimit int) error {
	var recent []*model.Message
	query := s.db.WithContext(ctx).
		Preload("Receipts").
		Where("chat_id = ?", chat.Id).
		Order("created_at desc")
	if messageLimit > 0 {
		query = query.Limit(messageLimit)
	}
	if err := query.Find(&recent).Error; err != nil {
		return errors.Wrap(err, "load chat messages failed")
	}

	// Reverse into newest-last order.
	chat.Messages = make([]*model.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		chat.Messages = append(chat.Messages, recent[i])
	}
	return nil
}

package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"gorm.io/gorm/clause"
)

func (s *PgStore) CreateMessage(ctx context.Context, message *model.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	row := *message
	row.Receipts = nil
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "create message failed")
	}

	s.publish(model.NewChangeEvent(model.TableMessages, model.ChangeOpInsert, row.Id, row))
	return nil
}

func (s *PgStore) GetMessage(ctx context.Context, messageId string) (*model.Message, error) {
	var message model.Message
	if err := s.db.WithContext(ctx).
		Preload("Receipts").
		Where("id = ?", messageId).
		First(&message).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &message, nil
}

func (s *PgStore) ListMessagesSince(ctx context.Context, chatIds []string, since time.Time) ([]*model.Message, error) {
	if len(chatIds) == 0 {
		return []*model.Message{}, nil
	}
	var messages []*model.Message
	if err := s.db.WithContext(ctx).
		Preload("Receipts").
		Where("chat_id IN ? AND created_at > ?", chatIds, since).
		Order("created_at asc").
		Find(&messages).Error; err != nil {
		return nil, errors.Wrap(err, "list messages since failed")
	}
	return messages, nil
}

// CreateReceipts batch-upserts receipts with ON CONFLICT DO NOTHING on the
// (message_id, reader_id) primary key, so marking read stays idempotent. It
// returns only the rows this call actually created, which the caller merges
// back into its caches.
func (s *PgStore) CreateReceipts(ctx context.Context, receipts []model.MessageReceipt) ([]model.MessageReceipt, error) {
	if len(receipts) == 0 {
		return []model.MessageReceipt{}, nil
	}
	for i := range receipts {
		if receipts[i].CreatedAt.IsZero() {
			receipts[i].CreatedAt = time.Now()
		}
	}

	messageIds := []string{}
	for _, receipt := range receipts {
		messageIds = append(messageIds, receipt.MessageID)
	}
	// Batches are single-reader (see the MessageStore contract), so one
	// reader id scopes the existence query.
	readerId := receipts[0].ReaderID

	// Snapshot what already exists to report back only new rows; the upsert
	// itself stays race-safe through the conflict clause.
	var existing []model.MessageReceipt
	if err := s.db.WithContext(ctx).
		Where("message_id IN ? AND reader_id = ?", messageIds, readerId).
		Find(&existing).Error; err != nil {
		return nil, errors.Wrap(err, "read existing receipts failed")
	}
	existed := map[string]bool{}
	for _, receipt := range existing {
		existed[receipt.MessageID] = true
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipts).Error; err != nil {
		return nil, errors.Wrap(err, "create receipts failed")
	}

	created := []model.MessageReceipt{}
	for _, receipt := range receipts {
		if existed[receipt.MessageID] {
			continue
		}
		created = append(created, receipt)
		s.publish(model.NewChangeEvent(
			model.TableMessageReceipts, model.ChangeOpInsert, receipt.MessageID+"/"+receipt.ReaderID, receipt))
	}
	return created, nil
}

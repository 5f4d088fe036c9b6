package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
)

// markTracker tracks which (chat, reader) pairs have a mark-as-read in
// flight. A chat's read state moves Unread -> MarkingInFlight -> Read; a
// second trigger while in flight is dropped instead of issuing a duplicate
// batch.
type markTracker struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newMarkTracker() *markTracker {
	return &markTracker{inFlight: map[string]bool{}}
}

func markKey(chatId, readerId string) string {
	return chatId + "/" + readerId
}

// begin reports whether the caller acquired the in-flight slot.
func (t *markTracker) begin(chatId, readerId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := markKey(chatId, readerId)
	if t.inFlight[key] {
		return false
	}
	t.inFlight[key] = true
	return true
}

func (t *markTracker) finish(chatId, readerId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, markKey(chatId, readerId))
}

// MarkChatRead marks every message of the chat not yet read by the reader.
// It is triggered when a chat detail view becomes active or the app resumes
// with a reloaded message list. Receipts are an idempotent batch upsert, so
// retries and concurrent markers can never duplicate a receipt; the returned
// slice holds only the receipts this call created, for merge-back into every
// local copy of the affected messages.
//
// A nil slice with a nil error means a marking was already in flight for
// this (chat, reader) and this trigger was dropped.
func (s *Service) MarkChatRead(ctx context.Context, chatId, readerId string) ([]model.MessageReceipt, error) {
	if !s.marking.begin(chatId, readerId) {
		return nil, nil
	}
	defer s.marking.finish(chatId, readerId)

	chat, err := s.chats.GetChat(ctx, chatId, 0)
	if err != nil {
		return nil, errors.Wrap(err, "mark as read fetch failed")
	}

	receipts := []model.MessageReceipt{}
	for _, message := range chat.Messages {
		if message.ReadBy(readerId) {
			continue
		}
		receipts = append(receipts, model.MessageReceipt{
			MessageID: message.Id,
			ReaderID:  readerId,
			ChatID:    chatId,
		})
	}
	if len(receipts) == 0 {
		return []model.MessageReceipt{}, nil
	}

	created, err := s.messages.CreateReceipts(ctx, receipts)
	if err != nil {
		return nil, errors.Wrap(err, "mark as read upsert failed")
	}
	return created, nil
}

// MergeReceipts appends the receipts into the matching messages, keyed by
// message id, skipping pairs already present. Both the list-level cache and
// any open detail view merge through this one helper so the two can never
// diverge.
func MergeReceipts(messages []*model.Message, receipts []model.MessageReceipt) {
	byMessage := map[string][]model.MessageReceipt{}
	for _, receipt := range receipts {
		byMessage[receipt.MessageID] = append(byMessage[receipt.MessageID], receipt)
	}
	for _, message := range messages {
		for _, receipt := range byMessage[message.Id] {
			if !message.ReadBy(receipt.ReaderID) {
				message.Receipts = append(message.Receipts, receipt)
			}
		}
	}
}

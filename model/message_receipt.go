package model

import "time"

/*

MessageReceipt marks a message as read by a reader

MessageID: message id
ReaderID: user who read the message
ChatID: denormalized chat id, lets mark-as-read results be merged back into
the right chat without an extra lookup
CreatedAt: time when relation is created

The composite primary key on (MessageID, ReaderID) makes marking idempotent:
reading the same message twice never duplicates a receipt or regresses a
count.

*/

type MessageReceipt struct {
	MessageID string `gorm:"primaryKey" json:"messageId"`
	ReaderID  string `gorm:"primaryKey" json:"readerId"`
	ChatID    string `gorm:"index" json:"chatId"`
	CreatedAt time.Time
}

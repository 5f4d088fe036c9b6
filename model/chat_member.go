package model

import "time"

/*

ChatMember is a "many-to-many" relation of a user's membership in a chat

ChatID: chat id
UserID: user id
CreatedAt: time when relation is created

An insert on this table is the realtime signal that a chat became visible to
the user.

*/

type ChatMember struct {
	ChatID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
}

package model

import (
	"sort"
	"strings"
	"time"
)

/*

Chat is a conversation between a fixed set of members.

Id: primary key
CreatedAt: time when entity is created

DiscoveryKey: deterministic key derived from the sorted member id set, used
to find-or-create the chat for a given member set. It carries a unique index
so that two concurrent creators cannot both succeed: the loser observes a
uniqueness violation and re-fetches the winner's chat.
Members: all members of this chat, "many-to-many" relation through
chat_members
Messages: messages in this chat, newest-last

*/

type Chat struct {
	Id           string `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time
	DiscoveryKey string     `gorm:"uniqueIndex"`
	Members      []*User    `json:"members" gorm:"many2many:chat_members;"`
	Messages     []*Message `json:"messages"`
}

// ComputeDiscoveryKey derives the chat discovery key from a member id set.
// The key is a pure function of the set: order of the input does not matter.
func ComputeDiscoveryKey(memberIds []string) string {
	ids := make([]string, len(memberIds))
	copy(ids, memberIds)
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

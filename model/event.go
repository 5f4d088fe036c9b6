package model

import (
	"encoding/json"
	"time"
)

// Table names carried by change events. These mirror the storage tables the
// realtime feed is scoped by.
const (
	TableChatMembers     = "chat_members"
	TableMessages        = "messages"
	TableMessageReceipts = "message_receipts"
	TableStories         = "stories"
	TableStoryViews      = "story_views"
	TablePosts           = "posts"
	TablePostLikes       = "post_likes"
)

type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "INSERT"
	ChangeOpDelete ChangeOp = "DELETE"
)

func (op ChangeOp) IsValid() bool {
	switch op {
	case ChangeOpInsert, ChangeOpDelete:
		return true
	}
	return false
}

func (op ChangeOp) String() string {
	return string(op)
}

/*

ChangeEvent is a single row-level change pushed on the change feed.

Table: which table changed
Op: INSERT or DELETE, the feed is append-only for everything but likes
RowID: primary key of the changed row, composite keys joined by "/"
Payload: the full row serialized to json, enough for a consumer to decode
the row without refetching in the common case
CommittedAt: commit time at the producer, consumers use it as the resync
watermark after a subscription refresh

*/

type ChangeEvent struct {
	Table       string          `json:"table"`
	Op          ChangeOp        `json:"op"`
	RowID       string          `json:"rowId"`
	Payload     json.RawMessage `json:"payload"`
	CommittedAt time.Time       `json:"committedAt"`
}

// DecodePayload unmarshals the event payload into the given row struct.
func (e *ChangeEvent) DecodePayload(row interface{}) error {
	return json.Unmarshal(e.Payload, row)
}

// NewChangeEvent builds an event for the given row, panicking on marshal
// failure since all rows are plain serializable structs.
func NewChangeEvent(table string, op ChangeOp, rowId string, row interface{}) ChangeEvent {
	payload, err := json.Marshal(row)
	if err != nil {
		panic(err)
	}
	return ChangeEvent{
		Table:       table,
		Op:          op,
		RowID:       rowId,
		Payload:     payload,
		CommittedAt: time.Now(),
	}
}

package model

import "time"

// MediaKind describes the payload of a message, story or post attachment.
type MediaKind string

const (
	MediaKindText  MediaKind = "text"
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) IsValid() bool {
	switch k {
	case MediaKindText, MediaKindPhoto, MediaKindVideo:
		return true
	}
	return false
}

/*

Message is a single message inside a chat.

Id: primary key
ChatID: chat this message belongs to, "belongs-to" relation
AuthorID: user who sent the message
CreatedAt: time when entity is created

Text: plain text body, empty for pure media messages
MediaUrl: public url of the attached media, empty for text messages
MediaKind: text | photo | video
Receipts: read receipts, grows monotonically and never shrinks

*/

type Message struct {
	Id        string `gorm:"primaryKey" json:"id"`
	ChatID    string `gorm:"index" json:"chatId"`
	AuthorID  string `json:"authorId"`
	CreatedAt time.Time
	Text      string
	MediaUrl  string
	MediaKind MediaKind
	Receipts  []MessageReceipt `json:"receipts" gorm:"foreignKey:MessageID"`
}

// ReadBy reports whether the given reader already has a receipt on this
// message.
func (m *Message) ReadBy(readerId string) bool {
	for _, r := range m.Receipts {
		if r.ReaderID == readerId {
			return true
		}
	}
	return false
}

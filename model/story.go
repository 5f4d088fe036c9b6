package model

import "time"

// StoryRetention is how long a story stays in the active feed. Expired
// stories are excluded from active queries but never physically deleted.
const StoryRetention = 24 * time.Hour

/*

Story is an ephemeral media post shown in the story rail.

Id: primary key
AuthorID:
Author: user who posted the story, "belongs-to" relation
CreatedAt: time when entity is created

MediaUrl: public url of the media in object storage
MediaKind: photo | video | text
Views: view stats, grows monotonically and never shrinks

*/

type Story struct {
	Id        string `gorm:"primaryKey" json:"id"`
	AuthorID  string `gorm:"index" json:"authorId"`
	Author    User   `json:"author"`
	CreatedAt time.Time
	MediaUrl  string
	MediaKind MediaKind
	Views     []StoryView `json:"views" gorm:"foreignKey:StoryID"`
}

// ViewedBy reports whether the given viewer already has a view stat on this
// story.
func (s *Story) ViewedBy(viewerId string) bool {
	for _, v := range s.Views {
		if v.ViewerID == viewerId {
			return true
		}
	}
	return false
}

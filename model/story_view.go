package model

import "time"

/*

StoryView marks a story as viewed by a viewer

StoryID: story id
ViewerID: user who viewed the story
CreatedAt: time when relation is created

Composite primary key on (StoryID, ViewerID) makes view recording idempotent.
Authors never get a view stat for their own story.

*/

type StoryView struct {
	StoryID   string `gorm:"primaryKey" json:"storyId"`
	ViewerID  string `gorm:"primaryKey" json:"viewerId"`
	CreatedAt time.Time `json:"viewedAt"`
}

package model

import "time"

/*

PostLike is a "many-to-many" relation of a user liking a post

Composite primary key makes likes idempotent, the same pattern as receipts
and story views.

*/

type PostLike struct {
	PostID    string `gorm:"primaryKey" json:"postId"`
	UserID    string `gorm:"primaryKey" json:"userId"`
	CreatedAt time.Time
}

/*

PostComment attaches a comment post to its parent post

PostID: the parent post
CommentID: the post that acts as the comment (IsComment = true)

*/

type PostComment struct {
	PostID    string `gorm:"primaryKey" json:"postId"`
	CommentID string `gorm:"primaryKey" json:"commentId"`
	CreatedAt time.Time
}

/*

PostMute hides a post from a user's feed queries

*/

type PostMute struct {
	PostID    string `gorm:"primaryKey" json:"postId"`
	UserID    string `gorm:"primaryKey" json:"userId"`
	CreatedAt time.Time
}

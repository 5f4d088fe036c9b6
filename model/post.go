package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Post is a feed entry authored by a user.

Id: primary key
AuthorID:
Author: user who created the post, "belongs-to" relation
CreatedAt: time when entity is created

Text: post body in plain text
IsComment: true if this post is a comment attached to another post through
posts_comments, comments are excluded from the home feed query
Media: attached media rows
Likes: like rows, mirrored optimistically on the client side

*/

type Post struct {
	Id        string `gorm:"primaryKey" json:"id"`
	AuthorID  string `gorm:"index" json:"authorId"`
	Author    User   `json:"author"`
	CreatedAt time.Time
	Text      string
	IsComment bool
	Media     []Media    `json:"media" gorm:"foreignKey:PostID"`
	Likes     []PostLike `json:"likes" gorm:"foreignKey:PostID"`
}

// LikedBy reports whether the given user has liked this post.
func (p *Post) LikedBy(userId string) bool {
	for _, l := range p.Likes {
		if l.UserID == userId {
			return true
		}
	}
	return false
}

/*

Media is a media attachment of a post.

Metadata carries transcode output (dimensions, duration) as free-form json
written by the upload path.

*/

type Media struct {
	Id       string `gorm:"primaryKey" json:"id"`
	PostID   string `gorm:"index" json:"postId"`
	Url      string
	Kind     MediaKind
	Metadata datatypes.JSON
}

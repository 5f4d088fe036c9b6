package model

import "time"

/*

User is an account on the platform.

Id: primary key
CreatedAt: time when entity is created

Username: unique handle picked at signup
DisplayName: optional human readable name shown in UI, falls back to Username
AvatarUrl: avatar image in media storage
Following: users this user follows, "many-to-many" relation through
user_followings

*/

type User struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time
	Username    string `gorm:"uniqueIndex"`
	DisplayName string
	AvatarUrl   string
	Following   []*User `json:"following" gorm:"many2many:user_followings;joinForeignKey:UserID;joinReferences:FollowingID"`
}

// Name returns the string shown for this user in chat titles and story rails.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

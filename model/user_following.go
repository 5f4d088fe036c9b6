package model

import "time"

/*

UserFollowing is a "many-to-many" relation of a user following another user

UserID: the follower
FollowingID: the user being followed
CreatedAt: time when relation is created

The composite primary key makes follow idempotent at the storage layer:
following the same user twice is a conflict, not a duplicate row.

*/

type UserFollowing struct {
	UserID      string `gorm:"primaryKey"`
	FollowingID string `gorm:"primaryKey"`
	CreatedAt   time.Time
}

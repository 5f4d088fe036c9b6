package entity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
)

// Service layers optimistic social mutations over the cache. Every mutation
// applies locally first so watchers update immediately, then persists; a
// persistence failure rolls the local change back and surfaces the error,
// so the cache never stays ahead of the store on a failed write.
type Service struct {
	cache  *Cache
	social store.SocialStore
}

func NewService(cache *Cache, social store.SocialStore) *Service {
	return &Service{cache: cache, social: social}
}

func (s *Service) Cache() *Cache {
	return s.cache
}

// LoadPost returns the cached post, falling back to the store on a miss and
// caching the result.
func (s *Service) LoadPost(ctx context.Context, postId string) (*model.Post, error) {
	if post := s.cache.GetPost(postId); post != nil {
		return post, nil
	}
	post, err := s.social.GetPost(ctx, postId)
	if err != nil {
		return nil, err
	}
	s.cache.PutPost(post)
	return s.cache.GetPost(postId), nil
}

// LoadUser returns the cached user, falling back to the store on a miss.
func (s *Service) LoadUser(ctx context.Context, userId string) (*model.User, error) {
	if user := s.cache.GetUser(userId); user != nil {
		return user, nil
	}
	user, err := s.social.GetUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	s.cache.PutUser(user)
	return s.cache.GetUser(userId), nil
}

// Like applies the like locally, then persists it. On persistence failure
// the like is removed again.
func (s *Service) Like(ctx context.Context, postId, userId string) error {
	like := model.PostLike{PostID: postId, UserID: userId, CreatedAt: time.Now()}

	applied := false
	s.cache.updatePost(postId, func(post *model.Post) bool {
		applied = addLike(post, like)
		return applied
	})

	if err := s.social.CreateLike(ctx, like); err != nil {
		if applied {
			s.cache.updatePost(postId, func(post *model.Post) bool {
				return removeLike(post, userId)
			})
		}
		return errors.Wrap(err, "failed to persist like")
	}
	return nil
}

// Unlike removes the like locally, then persists the removal. On failure
// the original like row is restored.
func (s *Service) Unlike(ctx context.Context, postId, userId string) error {
	var removed *model.PostLike
	s.cache.updatePost(postId, func(post *model.Post) bool {
		for _, l := range post.Likes {
			if l.UserID == userId {
				row := l
				removed = &row
				break
			}
		}
		return removeLike(post, userId)
	})

	if err := s.social.DeleteLike(ctx, postId, userId); err != nil {
		if removed != nil {
			s.cache.updatePost(postId, func(post *model.Post) bool {
				return addLike(post, *removed)
			})
		}
		return errors.Wrap(err, "failed to persist unlike")
	}
	return nil
}

// Follow adds the target to the viewer's following list locally, then
// persists the edge, rolling back on failure.
func (s *Service) Follow(ctx context.Context, userId, targetId string) error {
	if userId == targetId {
		return errors.New("cannot follow yourself")
	}
	target, err := s.LoadUser(ctx, targetId)
	if err != nil {
		return err
	}

	applied := false
	s.cache.updateUser(userId, func(user *model.User) bool {
		applied = addFollowing(user, target)
		return applied
	})

	if err := s.social.Follow(ctx, userId, targetId); err != nil {
		if applied {
			s.cache.updateUser(userId, func(user *model.User) bool {
				return removeFollowing(user, targetId)
			})
		}
		return errors.Wrap(err, "failed to persist follow")
	}
	return nil
}

// Unfollow removes the target from the viewer's following list locally,
// then persists the removal, rolling back on failure.
func (s *Service) Unfollow(ctx context.Context, userId, targetId string) error {
	var removed *model.User
	s.cache.updateUser(userId, func(user *model.User) bool {
		for _, followed := range user.Following {
			if followed.Id == targetId {
				row := *followed
				removed = &row
				break
			}
		}
		return removeFollowing(user, targetId)
	})

	if err := s.social.Unfollow(ctx, userId, targetId); err != nil {
		if removed != nil {
			s.cache.updateUser(userId, func(user *model.User) bool {
				return addFollowing(user, removed)
			})
		}
		return errors.Wrap(err, "failed to persist unfollow")
	}
	return nil
}

// MutePost hides the post from the user's future feed queries. Mutes are
// not mirrored in the cache; feed reads exclude them at the store.
func (s *Service) MutePost(ctx context.Context, postId, userId string) error {
	mute := model.PostMute{PostID: postId, UserID: userId, CreatedAt: time.Now()}
	return errors.Wrap(s.social.MutePost(ctx, mute), "failed to persist mute")
}

func addFollowing(user *model.User, target *model.User) bool {
	for _, followed := range user.Following {
		if followed.Id == target.Id {
			return false
		}
	}
	row := *target
	user.Following = append(user.Following, &row)
	return true
}

func removeFollowing(user *model.User, targetId string) bool {
	for i, followed := range user.Following {
		if followed.Id == targetId {
			user.Following = append(user.Following[:i], user.Following[i+1:]...)
			return true
		}
	}
	return false
}

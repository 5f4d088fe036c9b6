// Package entity keeps the canonical in-memory copy of posts and users on
// behalf of every view. Views watch entities by id instead of holding their
// own copies, so a like or follow lands in one place and every watcher sees
// the same row.
package entity

import (
	"sync"

	"github.com/jinzhu/copier"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/utils/log"
)

// Cache is the keyed entity store. All reads return detached deep copies;
// mutations go through Put*/apply helpers which notify watchers exactly once
// per changed entity.
type Cache struct {
	mu sync.RWMutex

	posts map[string]*model.Post
	users map[string]*model.User

	postWatchers map[string][]chan model.Post
	userWatchers map[string][]chan model.User
}

func NewCache() *Cache {
	return &Cache{
		posts:        map[string]*model.Post{},
		users:        map[string]*model.User{},
		postWatchers: map[string][]chan model.Post{},
		userWatchers: map[string][]chan model.User{},
	}
}

// GetPost returns a detached copy, or nil when the post is not cached.
func (c *Cache) GetPost(postId string) *model.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyPost(c.posts[postId])
}

func (c *Cache) GetUser(userId string) *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyUser(c.users[userId])
}

// PutPost stores the post and notifies its watchers.
func (c *Cache) PutPost(post *model.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[post.Id] = copyPost(post)
	notifyPost(c.postWatchers[post.Id], *copyPost(post))
}

func (c *Cache) PutUser(user *model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user.Id] = copyUser(user)
	notifyUser(c.userWatchers[user.Id], *copyUser(user))
}

// WatchPost subscribes to updates of one post. The returned channel holds
// the latest version only; a slow watcher skips intermediate states instead
// of blocking the cache. The cancel func must be called when done.
func (c *Cache) WatchPost(postId string) (<-chan model.Post, func()) {
	ch := make(chan model.Post, 1)
	c.mu.Lock()
	c.postWatchers[postId] = append(c.postWatchers[postId], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		watchers := c.postWatchers[postId]
		for i, w := range watchers {
			if w == ch {
				c.postWatchers[postId] = append(watchers[:i], watchers[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (c *Cache) WatchUser(userId string) (<-chan model.User, func()) {
	ch := make(chan model.User, 1)
	c.mu.Lock()
	c.userWatchers[userId] = append(c.userWatchers[userId], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		watchers := c.userWatchers[userId]
		for i, w := range watchers {
			if w == ch {
				c.userWatchers[userId] = append(watchers[:i], watchers[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// updatePost applies fn to the cached post under the lock and notifies
// watchers once. No-op when the post is not cached or fn reports no change.
func (c *Cache) updatePost(postId string, fn func(post *model.Post) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.posts[postId]
	if !ok || !fn(post) {
		return
	}
	notifyPost(c.postWatchers[postId], *copyPost(post))
}

func (c *Cache) updateUser(userId string, fn func(user *model.User) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[userId]
	if !ok || !fn(user) {
		return
	}
	notifyUser(c.userWatchers[userId], *copyUser(user))
}

// ApplyEvent folds a change feed event into the cache, keeping remote
// mutations and local optimistic ones converging on the same rows.
func (c *Cache) ApplyEvent(event model.ChangeEvent) {
	switch event.Table {
	case model.TablePosts:
		var post model.Post
		if err := event.DecodePayload(&post); err != nil {
			log.Log.Errorf("failed to decode post event %s: %v", event.RowID, err)
			return
		}
		c.PutPost(&post)

	case model.TablePostLikes:
		var like model.PostLike
		if err := event.DecodePayload(&like); err != nil {
			log.Log.Errorf("failed to decode like event %s: %v", event.RowID, err)
			return
		}
		if event.Op == model.ChangeOpDelete {
			c.updatePost(like.PostID, func(post *model.Post) bool {
				return removeLike(post, like.UserID)
			})
			return
		}
		c.updatePost(like.PostID, func(post *model.Post) bool {
			return addLike(post, like)
		})
	}
}

func addLike(post *model.Post, like model.PostLike) bool {
	if post.LikedBy(like.UserID) {
		return false
	}
	post.Likes = append(post.Likes, like)
	return true
}

func removeLike(post *model.Post, userId string) bool {
	for i, l := range post.Likes {
		if l.UserID == userId {
			post.Likes = append(post.Likes[:i], post.Likes[i+1:]...)
			return true
		}
	}
	return false
}

func copyPost(post *model.Post) *model.Post {
	if post == nil {
		return nil
	}
	out := &model.Post{}
	if err := copier.CopyWithOption(out, post, copier.Option{DeepCopy: true}); err != nil {
		panic(err)
	}
	return out
}

func copyUser(user *model.User) *model.User {
	if user == nil {
		return nil
	}
	out := &model.User{}
	if err := copier.CopyWithOption(out, user, copier.Option{DeepCopy: true}); err != nil {
		panic(err)
	}
	return out
}

// notifyPost runs under the cache lock so concurrent mutations cannot
// reorder their sends and leave a stale snapshot in a watcher's buffer.
// Sends never block.
func notifyPost(watchers []chan model.Post, snapshot model.Post) {
	for _, ch := range watchers {
		// Keep only the latest version in the buffer.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func notifyUser(watchers []chan model.User, snapshot model.User) {
	for _, ch := range watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

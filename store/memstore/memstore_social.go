package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
)

// --- StoryStore ---

func (s *MemStore) CreateStory(ctx context.Context, story *model.Story) error {
	s.mu.Lock()
	stored := *story
	stored.Views = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.stories[story.Id] = &stored
	event := model.NewChangeEvent(model.TableStories, model.ChangeOpInsert, story.Id, stored)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) GetStory(ctx context.Context, storyId string) (*model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[storyId]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.copyStoryLocked(story), nil
}

func (s *MemStore) ListActiveStories(ctx context.Context, authorIds []string, now time.Time) (map[string][]*model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[string]bool{}
	for _, id := range authorIds {
		wanted[id] = true
	}

	cutoff := now.Add(-model.StoryRetention)
	grouped := map[string][]*model.Story{}
	for _, story := range s.stories {
		if !wanted[story.AuthorID] || !story.CreatedAt.After(cutoff) {
			continue
		}
		grouped[story.AuthorID] = append(grouped[story.AuthorID], s.copyStoryLocked(story))
	}
	for authorId := range grouped {
		stories := grouped[authorId]
		sort.Slice(stories, func(i, j int) bool {
			return stories[i].CreatedAt.Before(stories[j].CreatedAt)
		})
	}
	return grouped, nil
}

func (s *MemStore) CreateStoryView(ctx context.Context, view model.StoryView) (bool, error) {
	s.mu.Lock()
	if _, ok := s.stories[view.StoryID]; !ok {
		s.mu.Unlock()
		return false, store.ErrNotFound
	}
	byViewer, ok := s.views[view.StoryID]
	if !ok {
		byViewer = map[string]model.StoryView{}
		s.views[view.StoryID] = byViewer
	}
	if _, exists := byViewer[view.ViewerID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now()
	}
	byViewer[view.ViewerID] = view
	event := model.NewChangeEvent(model.TableStoryViews, model.ChangeOpInsert, view.StoryID+"/"+view.ViewerID, view)
	s.mu.Unlock()

	s.publish(event)
	return true, nil
}

func (s *MemStore) copyStoryLocked(story *model.Story) *model.Story {
	out := *story
	if author, ok := s.users[story.AuthorID]; ok {
		out.Author = *author
	}
	out.Views = []model.StoryView{}
	for _, view := range s.views[story.Id] {
		out.Views = append(out.Views, view)
	}
	sort.Slice(out.Views, func(i, j int) bool {
		return out.Views[i].ViewerID < out.Views[j].ViewerID
	})
	return &out
}

// --- SocialStore ---

func (s *MemStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Id]; exists {
		return store.ErrAlreadyExists
	}
	stored := *user
	stored.Following = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.users[user.Id] = &stored
	for _, followed := range user.Following {
		if s.following[user.Id] == nil {
			s.following[user.Id] = map[string]bool{}
		}
		s.following[user.Id][followed.Id] = true
	}
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, userId string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userId]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *user
	followingIds := []string{}
	for id := range s.following[userId] {
		followingIds = append(followingIds, id)
	}
	sort.Strings(followingIds)
	for _, id := range followingIds {
		if followed, ok := s.users[id]; ok {
			copied := *followed
			copied.Following = nil
			out.Following = append(out.Following, &copied)
		} else {
			out.Following = append(out.Following, &model.User{Id: id})
		}
	}
	return &out, nil
}

func (s *MemStore) CreatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	stored := *post
	stored.Likes = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.posts[post.Id] = &stored
	event := model.NewChangeEvent(model.TablePosts, model.ChangeOpInsert, post.Id, stored)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) GetPost(ctx context.Context, postId string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postId]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.copyPostLocked(post), nil
}

func (s *MemStore) CreateComment(ctx context.Context, comment *model.Post, parentPostId string) error {
	s.mu.Lock()
	if _, ok := s.posts[parentPostId]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	comment.IsComment = true
	stored := *comment
	stored.Likes = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.posts[comment.Id] = &stored
	s.comments[parentPostId] = append(s.comments[parentPostId], comment.Id)
	event := model.NewChangeEvent(model.TablePosts, model.ChangeOpInsert, comment.Id, stored)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) ListComments(ctx context.Context, postId string) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Post{}
	for _, id := range s.comments[postId] {
		if comment, ok := s.posts[id]; ok {
			out = append(out, s.copyPostLocked(comment))
		}
	}
	return out, nil
}

func (s *MemStore) ListFeedPosts(ctx context.Context, viewerId string, limit int) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Post{}
	for _, post := range s.posts {
		if post.IsComment || s.mutes[viewerId][post.Id] {
			continue
		}
		out = append(out, s.copyPostLocked(post))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CreateLike(ctx context.Context, like model.PostLike) error {
	s.mu.Lock()
	if _, ok := s.posts[like.PostID]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	byUser, ok := s.likes[like.PostID]
	if !ok {
		byUser = map[string]model.PostLike{}
		s.likes[like.PostID] = byUser
	}
	if _, exists := byUser[like.UserID]; exists {
		s.mu.Unlock()
		return nil
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	byUser[like.UserID] = like
	event := model.NewChangeEvent(model.TablePostLikes, model.ChangeOpInsert, like.PostID+"/"+like.UserID, like)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) DeleteLike(ctx context.Context, postId, userId string) error {
	s.mu.Lock()
	byUser, ok := s.likes[postId]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	like, exists := byUser[userId]
	if !exists {
		s.mu.Unlock()
		return nil
	}
	delete(byUser, userId)
	event := model.NewChangeEvent(model.TablePostLikes, model.ChangeOpDelete, postId+"/"+userId, like)
	s.mu.Unlock()

	s.publish(event)
	return nil
}

func (s *MemStore) Follow(ctx context.Context, userId, followingId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[followingId]; !ok {
		return store.ErrNotFound
	}
	if s.following[userId] == nil {
		s.following[userId] = map[string]bool{}
	}
	s.following[userId][followingId] = true
	return nil
}

func (s *MemStore) Unfollow(ctx context.Context, userId, followingId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.following[userId], followingId)
	return nil
}

func (s *MemStore) MutePost(ctx context.Context, mute model.PostMute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mutes[mute.UserID] == nil {
		s.mutes[mute.UserID] = map[string]bool{}
	}
	s.mutes[mute.UserID][mute.PostID] = true
	return nil
}

func (s *MemStore) copyPostLocked(post *model.Post) *model.Post {
	out := *post
	if author, ok := s.users[post.AuthorID]; ok {
		out.Author = *author
	}
	out.Likes = []model.PostLike{}
	for _, like := range s.likes[post.Id] {
		out.Likes = append(out.Likes, like)
	}
	sort.Slice(out.Likes, func(i, j int) bool {
		return out.Likes[i].UserID < out.Likes[j].UserID
	})
	return &out
}

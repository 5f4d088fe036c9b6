// Package store defines the narrow gateways the synchronization engine
// consumes. Implementations exist for postgres (production) and an
// in-memory store (tests, local development); both enforce the same
// uniqueness constraints and emit the same change events, so the engine is
// testable without a live backend.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
)

var (
	// ErrNotFound is the distinguished "no such row" condition. On chat
	// discovery it drives the create path and is not a failure.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists reports a uniqueness violation. On chat creation it
	// means someone else just created the chat for the same member set and
	// the caller should re-fetch by discovery key.
	ErrAlreadyExists = errors.New("store: already exists")
)

// EventPublisher receives one change event per committed row mutation.
// changefeed.Bus satisfies this.
type EventPublisher interface {
	Publish(event model.ChangeEvent) error
}

type ChatStore interface {
	// CreateChat inserts the chat and one membership row per member.
	// Returns ErrAlreadyExists when the discovery key is taken.
	CreateChat(ctx context.Context, chat *model.Chat) error

	// GetChatByDiscoveryKey returns the chat with its last messageLimit
	// messages, or ErrNotFound.
	GetChatByDiscoveryKey(ctx context.Context, key string, messageLimit int) (*model.Chat, error)

	// GetChat returns the chat by id with members and its last messageLimit
	// messages (receipts resolved), or ErrNotFound.
	GetChat(ctx context.Context, chatId string, messageLimit int) (*model.Chat, error)

	// ListChatsForUser returns all chats the user is member of, newest
	// first, each with its last messageLimit messages.
	ListChatsForUser(ctx context.Context, userId string, messageLimit int) ([]*model.Chat, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, message *model.Message) error

	// GetMessage returns the message with receipts resolved, or ErrNotFound.
	GetMessage(ctx context.Context, messageId string) (*model.Message, error)

	// ListMessagesSince returns messages in any of the given chats created
	// strictly after since, oldest first. Powers resync after a
	// subscription refresh.
	ListMessagesSince(ctx context.Context, chatIds []string, since time.Time) ([]*model.Message, error)

	// CreateReceipts upserts the given receipts, ignoring rows that already
	// exist, and returns only the newly created ones. All receipts in one
	// call must belong to the same reader.
	CreateReceipts(ctx context.Context, receipts []model.MessageReceipt) ([]model.MessageReceipt, error)
}

type StoryStore interface {
	CreateStory(ctx context.Context, story *model.Story) error

	// GetStory returns the story with its views resolved, or ErrNotFound.
	GetStory(ctx context.Context, storyId string) (*model.Story, error)

	// ListActiveStories returns unexpired stories by the given authors,
	// grouped by author id, ordered by creation time ascending within each
	// group. Expired stories are excluded, never deleted.
	ListActiveStories(ctx context.Context, authorIds []string, now time.Time) (map[string][]*model.Story, error)

	// CreateStoryView records a view stat. Returns false when the
	// (story, viewer) pair was already recorded.
	CreateStoryView(ctx context.Context, view model.StoryView) (bool, error)
}

type SocialStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userId string) (*model.User, error)

	CreatePost(ctx context.Context, post *model.Post) error
	// GetPost returns the post with author, media and likes resolved, or
	// ErrNotFound.
	GetPost(ctx context.Context, postId string) (*model.Post, error)
	// ListFeedPosts returns non-comment posts newest first, excluding posts
	// the viewer muted.
	ListFeedPosts(ctx context.Context, viewerId string, limit int) ([]*model.Post, error)

	// CreateComment inserts the comment as a post with IsComment set and
	// attaches it to its parent. Returns ErrNotFound when the parent does
	// not exist.
	CreateComment(ctx context.Context, comment *model.Post, parentPostId string) error
	// ListComments returns the comments attached to the post, oldest first.
	ListComments(ctx context.Context, postId string) ([]*model.Post, error)

	CreateLike(ctx context.Context, like model.PostLike) error
	DeleteLike(ctx context.Context, postId, userId string) error

	Follow(ctx context.Context, userId, followingId string) error
	Unfollow(ctx context.Context, userId, followingId string) error

	MutePost(ctx context.Context, mute model.PostMute) error
}

// Store is the full gateway surface used by the server wiring.
type Store interface {
	ChatStore
	MessageStore
	StoryStore
	SocialStore
}

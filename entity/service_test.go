package entity

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"github.com/strandapp/strand/store/memstore"
)

// failingSocialStore injects write failures on top of the real store.
type failingSocialStore struct {
	store.SocialStore
	failWrites bool
}

var errInjected = errors.New("injected store failure")

func (f *failingSocialStore) CreateLike(ctx context.Context, like model.PostLike) error {
	if f.failWrites {
		return errInjected
	}
	return f.SocialStore.CreateLike(ctx, like)
}

func (f *failingSocialStore) DeleteLike(ctx context.Context, postId, userId string) error {
	if f.failWrites {
		return errInjected
	}
	return f.SocialStore.DeleteLike(ctx, postId, userId)
}

func (f *failingSocialStore) Follow(ctx context.Context, userId, followingId string) error {
	if f.failWrites {
		return errInjected
	}
	return f.SocialStore.Follow(ctx, userId, followingId)
}

type fixture struct {
	store   *memstore.MemStore
	social  *failingSocialStore
	cache   *Cache
	service *Service
}

func newFixture(t *testing.T) *fixture {
	st := memstore.New(nil)
	social := &failingSocialStore{SocialStore: st}
	cache := NewCache()
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		require.NoError(t, st.CreateUser(ctx, &model.User{Id: id}))
	}
	require.NoError(t, st.CreatePost(ctx, &model.Post{Id: "p1", AuthorID: "2", Text: "hello"}))

	return &fixture{
		store:   st,
		social:  social,
		cache:   cache,
		service: NewService(cache, social),
	}
}

func TestLikeUpdatesCacheAndStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, f.service.Like(ctx, "p1", "1"))
	require.True(t, f.cache.GetPost("p1").LikedBy("1"))

	stored, err := f.store.GetPost(ctx, "p1")
	require.NoError(t, err)
	require.True(t, stored.LikedBy("1"))
}

func TestLikeRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	f.social.failWrites = true
	err = f.service.Like(ctx, "p1", "1")
	require.Error(t, err)
	require.False(t, f.cache.GetPost("p1").LikedBy("1"))
}

func TestUnlikeRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, f.service.Like(ctx, "p1", "1"))

	f.social.failWrites = true
	err = f.service.Unlike(ctx, "p1", "1")
	require.Error(t, err)

	// The original like row is restored, including its timestamp.
	post := f.cache.GetPost("p1")
	require.True(t, post.LikedBy("1"))
	require.Len(t, post.Likes, 1)
	require.False(t, post.Likes[0].CreatedAt.IsZero())
}

func TestFollowRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadUser(ctx, "1")
	require.NoError(t, err)

	f.social.failWrites = true
	err = f.service.Follow(ctx, "1", "2")
	require.Error(t, err)
	require.Empty(t, f.cache.GetUser("1").Following)

	f.social.failWrites = false
	require.NoError(t, f.service.Follow(ctx, "1", "2"))
	require.Len(t, f.cache.GetUser("1").Following, 1)
}

func TestFollowSelfRejected(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.service.Follow(context.Background(), "1", "1"))
}

func TestWatcherSeesSingleNotificationPerChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	updates, cancel := f.cache.WatchPost("p1")
	defer cancel()

	require.NoError(t, f.service.Like(ctx, "p1", "1"))

	select {
	case post := <-updates:
		require.True(t, post.LikedBy("1"))
	case <-time.After(time.Second):
		t.Fatal("watcher never notified")
	}
	select {
	case <-updates:
		t.Fatal("duplicate notification for a single change")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherRollbackNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	updates, cancel := f.cache.WatchPost("p1")
	defer cancel()

	f.social.failWrites = true
	require.Error(t, f.service.Like(ctx, "p1", "1"))

	// The buffer holds only the latest state, which is the rolled-back one.
	require.Eventually(t, func() bool {
		select {
		case post := <-updates:
			return !post.LikedBy("1")
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestApplyEventFoldsRemoteLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	like := model.PostLike{PostID: "p1", UserID: "2", CreatedAt: time.Now()}
	f.cache.ApplyEvent(model.NewChangeEvent(model.TablePostLikes, model.ChangeOpInsert, "p1/2", like))
	require.True(t, f.cache.GetPost("p1").LikedBy("2"))

	f.cache.ApplyEvent(model.NewChangeEvent(model.TablePostLikes, model.ChangeOpDelete, "p1/2", like))
	require.False(t, f.cache.GetPost("p1").LikedBy("2"))
}

func TestCachedReadsAreDetached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	post := f.cache.GetPost("p1")
	post.Likes = append(post.Likes, model.PostLike{PostID: "p1", UserID: "hacker"})
	require.False(t, f.cache.GetPost("p1").LikedBy("hacker"))

	// Detaching must not lose timestamps.
	require.False(t, f.cache.GetPost("p1").CreatedAt.IsZero())
}

// Concurrent mutations must not leave an older snapshot in a watcher's
// buffer: after every writer finishes, the buffered version is the final
// cache state.
func TestWatcherBufferHoldsLatestAfterConcurrentUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.LoadPost(ctx, "p1")
	require.NoError(t, err)

	updates, cancel := f.cache.WatchPost("p1")
	defer cancel()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			like := model.PostLike{PostID: "p1", UserID: "w" + strconv.Itoa(i), CreatedAt: time.Now()}
			f.cache.ApplyEvent(model.NewChangeEvent(model.TablePostLikes, model.ChangeOpInsert, "p1/"+like.UserID, like))
		}(i)
	}
	wg.Wait()

	select {
	case post := <-updates:
		require.Equal(t, writers, len(post.Likes))
	default:
		t.Fatal("expected a buffered notification")
	}
	require.Equal(t, writers, len(f.cache.GetPost("p1").Likes))
}

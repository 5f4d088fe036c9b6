package story

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/strandapp/strand/media"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store/memstore"
)

type fixture struct {
	store   *memstore.MemStore
	files   *media.FakeFileStore
	service *Service
}

func newFixture(t *testing.T) *fixture {
	st := memstore.New(nil)
	files := media.NewFakeFileStore()
	svc := NewService(st, st, files, nil)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, st.CreateUser(context.Background(), &model.User{Id: id}))
	}
	return &fixture{store: st, files: files, service: svc}
}

func (f *fixture) postStory(t *testing.T, authorId string, createdAt time.Time) *model.Story {
	story := &model.Story{
		Id:        uuid.New().String(),
		AuthorID:  authorId,
		CreatedAt: createdAt,
		MediaUrl:  "fake://media/" + authorId + "/" + uuid.New().String() + ".jpg",
		MediaKind: model.MediaKindPhoto,
	}
	require.NoError(t, f.store.CreateStory(context.Background(), story))
	return story
}

func TestPostStoryUploadsMedia(t *testing.T) {
	f := newFixture(t)

	story, err := f.service.PostStory(
		context.Background(), "1", "beach.JPG", strings.NewReader("jpeg bytes"), model.MediaKindPhoto)
	require.NoError(t, err)
	require.Equal(t, "1", story.AuthorID)
	require.True(t, strings.HasPrefix(story.MediaUrl, "fake://media/1/"))
	require.True(t, strings.HasSuffix(story.MediaUrl, ".jpg"))

	grouped, err := f.store.ListActiveStories(context.Background(), []string{"1"}, time.Now())
	require.NoError(t, err)
	require.Len(t, grouped["1"], 1)
}

func TestPostStoryRejectsUnknownMediaKind(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PostStory(
		context.Background(), "1", "x.bin", strings.NewReader(""), model.MediaKind("gif"))
	require.Error(t, err)
}

func TestRailExcludesExpiredAndUnfollowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Follow(ctx, "1", "2"))

	f.postStory(t, "2", time.Now())
	f.postStory(t, "2", time.Now().Add(-model.StoryRetention-time.Minute)) // expired
	f.postStory(t, "3", time.Now())                                       // not followed

	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rail, 1)
	require.Equal(t, "2", rail[0].Author.Id)
	require.Len(t, rail[0].Stories, 1)
}

func TestRailOrdersOwnReelFirstThenUnviewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Follow(ctx, "1", "2"))
	require.NoError(t, f.store.Follow(ctx, "1", "3"))

	f.postStory(t, "1", time.Now())
	viewed := f.postStory(t, "2", time.Now())
	f.postStory(t, "3", time.Now().Add(-time.Hour))

	_, err := f.service.RecordView(ctx, viewed, "1")
	require.NoError(t, err)

	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rail, 3)
	require.Equal(t, "1", rail[0].Author.Id)
	// 3's reel is unviewed, so it outranks 2's even though 2 posted later.
	require.Equal(t, "3", rail[1].Author.Id)
	require.Equal(t, "2", rail[2].Author.Id)
}

func TestRecordViewIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.postStory(t, "2", time.Now())

	created, err := f.service.RecordView(ctx, story, "1")
	require.NoError(t, err)
	require.True(t, created)

	created, err = f.service.RecordView(ctx, story, "1")
	require.NoError(t, err)
	require.False(t, created)

	grouped, err := f.store.ListActiveStories(ctx, []string{"2"}, time.Now())
	require.NoError(t, err)
	require.Len(t, grouped["2"][0].Views, 1)
}

func TestRecordViewSkipsOwnStory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.postStory(t, "1", time.Now())

	created, err := f.service.RecordView(ctx, story, "1")
	require.NoError(t, err)
	require.False(t, created)

	grouped, err := f.store.ListActiveStories(ctx, []string{"1"}, time.Now())
	require.NoError(t, err)
	require.Empty(t, grouped["1"][0].Views)
}

// fakeSeenCache stands in for the redis-backed seen marker.
type fakeSeenCache struct {
	seen map[string]bool
}

func (c *fakeSeenCache) GetItemsSeenStatus(itemIds []string, userId string) ([]bool, error) {
	status := make([]bool, len(itemIds))
	for i, id := range itemIds {
		status[i] = c.seen[userId+"__"+id]
	}
	return status, nil
}

func (c *fakeSeenCache) SetItemsSeenStatus(itemIds []string, userId string, seen bool) error {
	for _, id := range itemIds {
		c.seen[userId+"__"+id] = seen
	}
	return nil
}

func TestRecordViewShortCircuitsOnSeenCache(t *testing.T) {
	f := newFixture(t)
	cache := &fakeSeenCache{seen: map[string]bool{}}
	f.service.seen = cache
	ctx := context.Background()
	story := f.postStory(t, "2", time.Now())

	created, err := f.service.RecordView(ctx, story, "1")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, cache.seen["1__"+story.Id])

	created, err = f.service.RecordView(ctx, story, "1")
	require.NoError(t, err)
	require.False(t, created)
}

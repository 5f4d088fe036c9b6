package story

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/strandapp/strand/media"
)

func instantDownload(ctx context.Context, url string) ([]byte, error) {
	return []byte("media:" + url), nil
}

type deliveries struct {
	mu  sync.Mutex
	ids []string
}

func (d *deliveries) record(storyId string, data []byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, storyId)
}

func (d *deliveries) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.ids...)
}

func sessionFixture(t *testing.T) (*fixture, Reel) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Follow(ctx, "1", "2"))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		f.postStory(t, "2", base.Add(time.Duration(i)*time.Minute))
	}
	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rail, 1)
	return f, rail[0]
}

func TestSessionStartsAtFirstUnviewed(t *testing.T) {
	f, reel := sessionFixture(t)
	ctx := context.Background()

	// Viewer already watched the first story; the cursor opens on the
	// second one.
	_, err := f.service.RecordView(ctx, reel.Stories[0], "1")
	require.NoError(t, err)
	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)

	session := NewSession(f.service, media.NewFetcherWithDownload(instantDownload), "1", rail[0], nil)
	defer session.Close()

	story, err := session.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, reel.Stories[1].Id, story.Id)
}

func TestSessionStartsAtFirstWhenAllViewed(t *testing.T) {
	f, reel := sessionFixture(t)
	ctx := context.Background()
	for _, s := range reel.Stories {
		_, err := f.service.RecordView(ctx, s, "1")
		require.NoError(t, err)
	}
	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)

	session := NewSession(f.service, media.NewFetcherWithDownload(instantDownload), "1", rail[0], nil)
	defer session.Close()

	story, err := session.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, reel.Stories[0].Id, story.Id)
}

func TestSessionCursorClampsAtBothEnds(t *testing.T) {
	f, reel := sessionFixture(t)
	ctx := context.Background()

	session := NewSession(f.service, media.NewFetcherWithDownload(instantDownload), "1", reel, nil)
	defer session.Close()

	_, err := session.Start(ctx)
	require.NoError(t, err)

	// Prev at the first story stays put.
	story, err := session.Prev(ctx)
	require.NoError(t, err)
	require.Equal(t, reel.Stories[0].Id, story.Id)

	for i := 0; i < 10; i++ {
		story, err = session.Next(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, reel.Stories[2].Id, story.Id)

	// Every story the cursor landed on got exactly one view stat.
	rail, err := f.service.Rail(ctx, "1")
	require.NoError(t, err)
	for _, s := range rail[0].Stories {
		require.Len(t, s.Views, 1)
	}
}

func TestSessionDeliversMediaForEachPosition(t *testing.T) {
	f, reel := sessionFixture(t)
	ctx := context.Background()

	got := &deliveries{}
	session := NewSession(f.service, media.NewFetcherWithDownload(instantDownload), "1", reel, got.record)
	defer session.Close()

	_, err := session.Start(ctx)
	require.NoError(t, err)
	_, err = session.Next(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ids := got.snapshot()
		return len(ids) >= 1 && ids[len(ids)-1] == reel.Stories[1].Id
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSessionStaleFetchNeverDelivers(t *testing.T) {
	f, reel := sessionFixture(t)
	ctx := context.Background()

	// The first story's download blocks until released; the cursor moves on
	// before it completes.
	release := make(chan struct{})
	slowUrl := reel.Stories[0].MediaUrl
	download := func(ctx context.Context, url string) ([]byte, error) {
		if url == slowUrl {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return []byte("media:" + url), nil
	}

	got := &deliveries{}
	session := NewSession(f.service, media.NewFetcherWithDownload(download), "1", reel, got.record)
	defer session.Close()

	_, err := session.Start(ctx)
	require.NoError(t, err)
	_, err = session.Next(ctx)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		ids := got.snapshot()
		return len(ids) == 1 && ids[0] == reel.Stories[1].Id
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{reel.Stories[1].Id}, got.snapshot())
}

// Package story implements the ephemeral story rail: posting media-backed
// stories, listing unexpired reels for the viewer's follow graph, recording
// idempotent view stats and driving the viewing cursor.
package story

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/strandapp/strand/media"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"github.com/strandapp/strand/utils/log"
)

// SeenCache is the optional fast idempotency layer in front of view
// recording. utils.RedisStatusStore satisfies it; the relational view rows
// remain the source of truth.
type SeenCache interface {
	GetItemsSeenStatus(itemIds []string, userId string) ([]bool, error)
	SetItemsSeenStatus(itemIds []string, userId string, seen bool) error
}

// Reel is one author's run of active stories, oldest first.
type Reel struct {
	Author  model.User     `json:"author"`
	Stories []*model.Story `json:"stories"`
}

// HasUnviewed reports whether the viewer still has stories to watch in this
// reel. The viewer's own reel always reads as viewed.
func (r *Reel) HasUnviewed(viewerId string) bool {
	if r.Author.Id == viewerId {
		return false
	}
	for _, s := range r.Stories {
		if !s.ViewedBy(viewerId) {
			return true
		}
	}
	return false
}

type Service struct {
	stories store.StoryStore
	social  store.SocialStore
	files   media.FileStore
	seen    SeenCache

	now func() time.Time
}

// NewService wires the story engine. seen may be nil, in which case every
// view goes straight to the store.
func NewService(stories store.StoryStore, social store.SocialStore, files media.FileStore, seen SeenCache) *Service {
	return &Service{
		stories: stories,
		social:  social,
		files:   files,
		seen:    seen,
		now:     time.Now,
	}
}

// PostStory uploads the media and inserts the story row. The returned story
// carries the public media url.
func (s *Service) PostStory(ctx context.Context, authorId, fileName string, body io.Reader, kind model.MediaKind) (*model.Story, error) {
	if !kind.IsValid() {
		return nil, errors.Errorf("invalid media kind %q", kind)
	}
	key := media.KeyForUpload(authorId, fileName)
	url, err := s.files.Store(ctx, key, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store story media")
	}

	story := &model.Story{
		Id:        uuid.New().String(),
		AuthorID:  authorId,
		CreatedAt: s.now(),
		MediaUrl:  url,
		MediaKind: kind,
	}
	if err := s.stories.CreateStory(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

// Rail returns the viewer's story rail: their own reel first when present,
// then followed authors' reels with unviewed reels ahead of fully viewed
// ones, most recent story first within each bucket.
func (s *Service) Rail(ctx context.Context, viewerId string) ([]Reel, error) {
	viewer, err := s.social.GetUser(ctx, viewerId)
	if err != nil {
		return nil, err
	}

	authorIds := []string{viewerId}
	authorsById := map[string]model.User{viewerId: *viewer}
	for _, followed := range viewer.Following {
		authorIds = append(authorIds, followed.Id)
		authorsById[followed.Id] = *followed
	}

	grouped, err := s.stories.ListActiveStories(ctx, authorIds, s.now())
	if err != nil {
		return nil, err
	}

	var own *Reel
	var others []Reel
	for authorId, stories := range grouped {
		reel := Reel{Author: authorsById[authorId], Stories: stories}
		if authorId == viewerId {
			r := reel
			own = &r
			continue
		}
		others = append(others, reel)
	}

	sort.SliceStable(others, func(i, j int) bool {
		iUnviewed, jUnviewed := others[i].HasUnviewed(viewerId), others[j].HasUnviewed(viewerId)
		if iUnviewed != jUnviewed {
			return iUnviewed
		}
		return latestStoryTime(others[i]).After(latestStoryTime(others[j]))
	})

	rail := []Reel{}
	if own != nil {
		rail = append(rail, *own)
	}
	return append(rail, others...), nil
}

func latestStoryTime(r Reel) time.Time {
	var latest time.Time
	for _, s := range r.Stories {
		if s.CreatedAt.After(latest) {
			latest = s.CreatedAt
		}
	}
	return latest
}

// RecordView stores a view stat for the viewer on the story. Authors never
// get a stat on their own story, and re-viewing is a no-op. Returns whether
// a new stat was created.
func (s *Service) RecordView(ctx context.Context, story *model.Story, viewerId string) (bool, error) {
	if story.AuthorID == viewerId {
		return false, nil
	}

	if s.seen != nil {
		status, err := s.seen.GetItemsSeenStatus([]string{story.Id}, viewerId)
		if err != nil {
			// The cache is a hint only. Fall through to the store.
			log.Log.Errorf("seen cache read failed for story %s: %v", story.Id, err)
		} else if len(status) == 1 && status[0] {
			return false, nil
		}
	}

	created, err := s.stories.CreateStoryView(ctx, model.StoryView{
		StoryID:   story.Id,
		ViewerID:  viewerId,
		CreatedAt: s.now(),
	})
	if err != nil {
		return false, err
	}

	if s.seen != nil {
		if err := s.seen.SetItemsSeenStatus([]string{story.Id}, viewerId, true); err != nil {
			log.Log.Errorf("seen cache write failed for story %s: %v", story.Id, err)
		}
	}
	return created, nil
}

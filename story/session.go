package story

import (
	"context"

	"github.com/google/uuid"
	"github.com/strandapp/strand/media"
	"github.com/strandapp/strand/model"
)

// Session is the viewing cursor over one reel. The cursor clamps at both
// ends, starts at the first unviewed story (or the first story when all are
// viewed), records a view stat on every story it lands on, and prefetches
// the story's media through a single slot so a superseded fetch can never
// deliver over a newer one.
type Session struct {
	service *Service
	fetcher *media.Fetcher
	deliver func(storyId string, data []byte, err error)

	viewerId string
	stories  []*model.Story
	index    int
	slot     string
}

// NewSession opens a cursor over the reel's stories. deliver receives the
// media bytes of the story the cursor currently points at; it is never
// called for a story the cursor already moved away from.
func NewSession(service *Service, fetcher *media.Fetcher, viewerId string, reel Reel, deliver func(storyId string, data []byte, err error)) *Session {
	s := &Session{
		service:  service,
		fetcher:  fetcher,
		deliver:  deliver,
		viewerId: viewerId,
		stories:  reel.Stories,
		slot:     "story_session_" + uuid.New().String(),
		index:    initialIndex(reel.Stories, viewerId),
	}
	return s
}

func initialIndex(stories []*model.Story, viewerId string) int {
	for i, story := range stories {
		if story.AuthorID == viewerId {
			continue
		}
		if !story.ViewedBy(viewerId) {
			return i
		}
	}
	return 0
}

// Start lands the cursor on its initial story, recording the view and
// kicking off the media fetch. No-op on an empty reel.
func (s *Session) Start(ctx context.Context) (*model.Story, error) {
	return s.land(ctx)
}

// Current returns the story under the cursor without side effects.
func (s *Session) Current() *model.Story {
	if len(s.stories) == 0 {
		return nil
	}
	return s.stories[s.index]
}

// Next advances the cursor. At the last story it stays put and returns the
// same story again.
func (s *Session) Next(ctx context.Context) (*model.Story, error) {
	if s.index < len(s.stories)-1 {
		s.index++
		return s.land(ctx)
	}
	return s.Current(), nil
}

// Prev moves the cursor back, clamping at the first story.
func (s *Session) Prev(ctx context.Context) (*model.Story, error) {
	if s.index > 0 {
		s.index--
		return s.land(ctx)
	}
	return s.Current(), nil
}

// Close cancels any in-flight media fetch.
func (s *Session) Close() {
	s.fetcher.Cancel(s.slot)
}

// land records the view for the story under the cursor and starts its media
// fetch, superseding whatever fetch the previous position started.
func (s *Session) land(ctx context.Context) (*model.Story, error) {
	story := s.Current()
	if story == nil {
		return nil, nil
	}

	if s.deliver != nil && story.MediaUrl != "" {
		id := story.Id
		s.fetcher.Fetch(ctx, s.slot, story.MediaUrl, func(data []byte, err error) {
			s.deliver(id, data, err)
		})
	}

	if _, err := s.service.RecordView(ctx, story, s.viewerId); err != nil {
		return story, err
	}
	return story, nil
}

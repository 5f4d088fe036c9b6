package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"gorm.io/gorm/clause"
)

func (s *PgStore) CreateStory(ctx context.Context, story *model.Story) error {
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now()
	}
	row := *story
	row.Views = nil
	row.Author = model.User{}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "create story failed")
	}

	s.publish(model.NewChangeEvent(model.TableStories, model.ChangeOpInsert, row.Id, row))
	return nil
}

func (s *PgStore) GetStory(ctx context.Context, storyId string) (*model.Story, error) {
	var story model.Story
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Views").
		Where("id = ?", storyId).
		First(&story).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &story, nil
}

// ListActiveStories returns unexpired stories grouped by author. Expired
// stories simply fall out of the query window; nothing is deleted.
func (s *PgStore) ListActiveStories(ctx context.Context, authorIds []string, now time.Time) (map[string][]*model.Story, error) {
	grouped := map[string][]*model.Story{}
	if len(authorIds) == 0 {
		return grouped, nil
	}

	var stories []*model.Story
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Views").
		Where("author_id IN ? AND created_at > ?", authorIds, now.Add(-model.StoryRetention)).
		Order("created_at asc").
		Find(&stories).Error; err != nil {
		return nil, errors.Wrap(err, "list active stories failed")
	}

	for _, story := range stories {
		grouped[story.AuthorID] = append(grouped[story.AuthorID], story)
	}
	return grouped, nil
}

// CreateStoryView records a view with ON CONFLICT DO NOTHING; RowsAffected
// tells whether this call created the stat or it already existed.
func (s *PgStore) CreateStoryView(ctx context.Context, view model.StoryView) (bool, error) {
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now()
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&view)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "create story view failed")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	s.publish(model.NewChangeEvent(
		model.TableStoryViews, model.ChangeOpInsert, view.StoryID+"/"+view.ViewerID, view))
	return true, nil
}

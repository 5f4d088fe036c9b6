package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *PgStore) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return errors.Wrap(err, "create user failed")
	}
	return nil
}

func (s *PgStore) GetUser(ctx context.Context, userId string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).
		Preload("Following").
		Where("id = ?", userId).
		First(&user).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *PgStore) CreatePost(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	row := *post
	row.Likes = nil
	row.Author = model.User{}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "create post failed")
	}

	s.publish(model.NewChangeEvent(model.TablePosts, model.ChangeOpInsert, row.Id, row))
	return nil
}

func (s *PgStore) GetPost(ctx context.Context, postId string) (*model.Post, error) {
	var post model.Post
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Media").
		Preload("Likes").
		Where("id = ?", postId).
		First(&post).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &post, nil
}

func (s *PgStore) CreateComment(ctx context.Context, comment *model.Post, parentPostId string) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.IsComment = true
	row := *comment
	row.Likes = nil
	row.Author = model.User{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent model.Post
		if err := tx.Select("id").Where("id = ?", parentPostId).First(&parent).Error; err != nil {
			return translateNotFound(err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return errors.Wrap(err, "create comment failed")
		}
		relation := model.PostComment{PostID: parentPostId, CommentID: row.Id, CreatedAt: row.CreatedAt}
		return errors.Wrap(tx.Create(&relation).Error, "attach comment failed")
	})
	if err != nil {
		return err
	}

	s.publish(model.NewChangeEvent(model.TablePosts, model.ChangeOpInsert, row.Id, row))
	return nil
}

func (s *PgStore) ListComments(ctx context.Context, postId string) ([]*model.Post, error) {
	var comments []*model.Post
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Likes").
		Joins("JOIN post_comments ON post_comments.comment_id = posts.id").
		Where("post_comments.post_id = ?", postId).
		Order("posts.created_at asc").
		Find(&comments).Error; err != nil {
		return nil, errors.Wrap(err, "list comments failed")
	}
	return comments, nil
}

func (s *PgStore) ListFeedPosts(ctx context.Context, viewerId string, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	query := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Media").
		Preload("Likes").
		Where("is_comment = ?", false).
		Where("posts.id NOT IN (?)",
			s.db.Model(&model.PostMute{}).Select("post_id").Where("user_id = ?", viewerId)).
		Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, errors.Wrap(err, "list feed posts failed")
	}
	return posts, nil
}

func (s *PgStore) CreateLike(ctx context.Context, like model.PostLike) error {
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	if result.Error != nil {
		return errors.Wrap(result.Error, "create like failed")
	}
	if result.RowsAffected == 0 {
		return nil
	}

	s.publish(model.NewChangeEvent(
		model.TablePostLikes, model.ChangeOpInsert, like.PostID+"/"+like.UserID, like))
	return nil
}

func (s *PgStore) DeleteLike(ctx context.Context, postId, userId string) error {
	like := model.PostLike{PostID: postId, UserID: userId}
	result := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postId, userId).
		Delete(&model.PostLike{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete like failed")
	}
	if result.RowsAffected == 0 {
		return nil
	}

	s.publish(model.NewChangeEvent(
		model.TablePostLikes, model.ChangeOpDelete, postId+"/"+userId, like))
	return nil
}

func (s *PgStore) Follow(ctx context.Context, userId, followingId string) error {
	row := model.UserFollowing{UserID: userId, FollowingID: followingId, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error; err != nil {
		return errors.Wrap(err, "follow failed")
	}
	return nil
}

func (s *PgStore) Unfollow(ctx context.Context, userId, followingId string) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND following_id = ?", userId, followingId).
		Delete(&model.UserFollowing{}).Error; err != nil {
		return errors.Wrap(err, "unfollow failed")
	}
	return nil
}

func (s *PgStore) MutePost(ctx context.Context, mute model.PostMute) error {
	if mute.CreatedAt.IsZero() {
		mute.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&mute).Error; err != nil {
		return errors.Wrap(err, "mute post failed")
	}
	return nil
}

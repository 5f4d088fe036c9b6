package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/strandapp/strand/chat"
	"github.com/strandapp/strand/entity"
	"github.com/strandapp/strand/media"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"github.com/strandapp/strand/story"
	"github.com/strandapp/strand/utils"
)

// Handlers carries the services behind the REST surface.
type Handlers struct {
	store    store.Store
	chats    *chat.Service
	stories  *story.Service
	entities *entity.Service
	files    media.FileStore
}

func NewHandlers(st store.Store, chats *chat.Service, stories *story.Service, entities *entity.Service, files media.FileStore) *Handlers {
	return &Handlers{
		store:    st,
		chats:    chats,
		stories:  stories,
		entities: entities,
		files:    files,
	}
}

func currentUser(c *gin.Context) string {
	return c.Request.Header.Get("sub")
}

func abortWithError(c *gin.Context, err error) {
	switch errors.Cause(err) {
	case store.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"msg": err.Error()})
	case store.ErrAlreadyExists:
		c.JSON(http.StatusConflict, gin.H{"msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
	}
}

// --- chats ---

func (h *Handlers) ListChats(c *gin.Context) {
	chats, err := h.store.ListChatsForUser(c.Request.Context(), currentUser(c), chat.DefaultMessageLimit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

type findOrCreateChatRequest struct {
	MemberIds []string `json:"memberIds" binding:"required,min=1"`
}

// FindOrCreateChat resolves the chat for the given member set, creating it
// on first contact. Concurrent creation races settle on a single chat.
func (h *Handlers) FindOrCreateChat(c *gin.Context) {
	var req findOrCreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	memberIds := req.MemberIds
	if !utils.ContainsString(memberIds, currentUser(c)) {
		memberIds = append(memberIds, currentUser(c))
	}

	found, err := h.chats.FindOrCreateChat(c.Request.Context(), memberIds)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": found})
}

type sendMessageRequest struct {
	Text      string          `json:"text"`
	MediaUrl  string          `json:"mediaUrl"`
	MediaKind model.MediaKind `json:"mediaKind"`
}

func (h *Handlers) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}
	if req.MediaKind == "" {
		req.MediaKind = model.MediaKindText
	}

	message, err := h.chats.SendMessageToChat(
		c.Request.Context(), currentUser(c), c.Param("id"), req.Text, req.MediaUrl, req.MediaKind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// MarkChatRead creates receipts for every unread message in the chat. A
// second call, or a call racing an in-flight one, is a no-op.
func (h *Handlers) MarkChatRead(c *gin.Context) {
	receipts, err := h.chats.MarkChatRead(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if receipts == nil {
		receipts = []model.MessageReceipt{}
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// --- stories ---

func (h *Handlers) StoryRail(c *gin.Context) {
	rail, err := h.stories.Rail(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rail": rail})
}

func (h *Handlers) PostStory(c *gin.Context) {
	kind := model.MediaKind(c.PostForm("mediaKind"))
	file, header, err := c.Request.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "missing media file"})
		return
	}
	defer file.Close()

	posted, err := h.stories.PostStory(c.Request.Context(), currentUser(c), header.Filename, file, kind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": posted})
}

func (h *Handlers) ViewStory(c *gin.Context) {
	viewed, err := h.store.GetStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	created, err := h.stories.RecordView(c.Request.Context(), viewed, currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

// --- feed ---

const defaultFeedLimit = 50

func (h *Handlers) Feed(c *gin.Context) {
	posts, err := h.store.ListFeedPosts(c.Request.Context(), currentUser(c), defaultFeedLimit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

type createPostRequest struct {
	Id           string `json:"id" binding:"required"`
	Text         string `json:"text"`
	ParentPostId string `json:"parentPostId"`
}

// CreatePost creates a feed post, or a comment when parentPostId is set.
// Comments are posts attached to their parent; they never show in the feed.
func (h *Handlers) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	post := &model.Post{Id: req.Id, AuthorID: currentUser(c), Text: req.Text}
	if req.ParentPostId != "" {
		if err := h.store.CreateComment(c.Request.Context(), post, req.ParentPostId); err != nil {
			abortWithError(c, err)
			return
		}
	} else if err := h.store.CreatePost(c.Request.Context(), post); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (h *Handlers) ListComments(c *gin.Context) {
	comments, err := h.store.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *Handlers) LikePost(c *gin.Context) {
	if err := h.entities.Like(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) UnlikePost(c *gin.Context) {
	if err := h.entities.Unlike(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) MutePost(c *gin.Context) {
	if err := h.entities.MutePost(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- media ---

// UploadMedia stores an arbitrary media file (message attachments, avatars)
// and returns its public url.
func (h *Handlers) UploadMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "missing media file"})
		return
	}
	defer file.Close()

	key := media.KeyForUpload(currentUser(c), header.Filename)
	url, err := h.files.Store(c.Request.Context(), key, file)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// --- social graph ---

func (h *Handlers) FollowUser(c *gin.Context) {
	if err := h.entities.Follow(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) UnfollowUser(c *gin.Context) {
	if err := h.entities.Unfollow(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

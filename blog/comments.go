package blog

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jyurniq/auth"
	"jyurniq/common"
	"jyurniq/models"
	"jyurniq/monitoring"
)

type CommentView struct {
	models.Comment
	Author *models.PublicUser `json:"author"`
}

// CommentThread is a top-level comment and every reply below it.
type CommentThread struct {
	CommentView
	Replies []CommentView `json:"replies"`
}

// BuildCommentTree groups comments, given oldest first, into threads. Replies
// to replies are attached to the thread's top-level comment so the tree
// never renders more than one level.
func BuildCommentTree(comments []models.Comment) []CommentThread {
	byID := make(map[uint]*models.Comment, len(comments))
	for i := range comments {
		byID[comments[i].ID] = &comments[i]
	}

	rootOf := func(c *models.Comment) uint {
		cur := c
		for steps := 0; cur.ParentID != nil && steps < len(comments); steps++ {
			parent, ok := byID[*cur.ParentID]
			if !ok {
				break
			}
			cur = parent
		}
		return cur.ID
	}

	threads := []CommentThread{}
	index := map[uint]int{}
	for i := range comments {
		c := &comments[i]
		if c.ParentID == nil || byID[*c.ParentID] == nil {
			index[c.ID] = len(threads)
			threads = append(threads, CommentThread{
				CommentView: viewOf(c),
				Replies:     []CommentView{},
			})
		}
	}
	for i := range comments {
		c := &comments[i]
		if c.ParentID == nil || byID[*c.ParentID] == nil {
			continue
		}
		if pos, ok := index[rootOf(c)]; ok {
			threads[pos].Replies = append(threads[pos].Replies, viewOf(c))
		}
	}
	return threads
}

func viewOf(c *models.Comment) CommentView {
	return CommentView{Comment: *c, Author: c.Author.Public()}
}

func (b *BlogModule) listComments(c *gin.Context) {
	blog := b.loadBlog(c)
	if blog == nil {
		return
	}
	if status, msg := visibility(blog, auth.CurrentUser(c)); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	comments, err := LoadComments(b.db, blog.ID)
	if err != nil {
		b.log.Error().Err(err).Uint("blog_id", blog.ID).Msg("failed to load comments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load comments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": BuildCommentTree(comments)})
}

// LoadComments returns a blog's comments with authors, oldest first.
func LoadComments(db *gorm.DB, blogID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := db.Preload("Author").
		Where("blog_id = ?", blogID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

type commentRequest struct {
	Content  string `json:"content" binding:"required,min=2,max=2000"`
	ParentID *uint  `json:"parentId"`
}

func (b *BlogModule) createComment(c *gin.Context) {
	blog := b.loadBlog(c)
	if blog == nil {
		return
	}

	user := auth.CurrentUser(c)
	if blog.Privacy == models.PrivacyPrivate {
		c.JSON(http.StatusForbidden, gin.H{"error": "Comments are disabled on private blogs"})
		return
	}
	if status, msg := visibility(blog, user); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}
	content := strings.TrimSpace(req.Content)
	if utf8.RuneCountInString(content) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must be at least 2 characters"})
		return
	}

	if req.ParentID != nil {
		var count int64
		err := b.db.Model(&models.Comment{}).Where("id = ? AND blog_id = ?", *req.ParentID, blog.ID).Count(&count).Error
		if err != nil {
			b.log.Error().Err(err).Uint("blog_id", blog.ID).Msg("failed to look up parent comment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to post comment"})
			return
		}
		if count == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parent comment not found on this blog"})
			return
		}
	}

	comment := models.Comment{
		BlogID:   blog.ID,
		AuthorID: user.ID,
		Content:  content,
		ParentID: req.ParentID,
	}
	if err := b.db.Create(&comment).Error; err != nil {
		b.log.Error().Err(err).Uint("blog_id", blog.ID).Msg("failed to create comment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to post comment"})
		return
	}
	monitoring.RecordComment()
	b.invalidate(c, blog.Slug)

	comment.Author = user
	c.JSON(http.StatusCreated, viewOf(&comment))
}

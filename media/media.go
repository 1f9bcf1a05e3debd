package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jyurniq/auth"
	"jyurniq/common"
)

const (
	MaxImageSize  = 10 << 20
	maxBodySize   = MaxImageSize*4/3 + 1<<20
	defaultFolder = "travel-blogs"
)

var (
	errTooLarge  = errors.New("image exceeds 10 MB")
	errNotImage  = errors.New("only image uploads are allowed")
	errBadBase64 = errors.New("file must be a data URL or base64 string")

	folderPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*(/[a-z0-9][a-z0-9_-]*)*$`)
)

type MediaModule struct {
	store ImageStore
	log   zerolog.Logger
}

// NewMediaModule serves uploads from store. A nil store answers every request
// with "Image storage not configured".
func NewMediaModule(store ImageStore) *MediaModule {
	return &MediaModule{store: store, log: common.NewLogger("media")}
}

func (m *MediaModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/upload", auth.RequireAuth(), m.requireStore, m.upload)

	images := router.Group("/api/images", auth.RequireAuth(), m.requireStore)
	{
		images.GET("", m.listImages)
		images.POST("", m.createImage)
		images.DELETE("", m.deleteImage)
	}
}

func (m *MediaModule) requireStore(c *gin.Context) {
	if m.store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Image storage not configured"})
		return
	}
	c.Next()
}

type Image struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Thumbnail string    `json:"thumbnail"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type uploadRequest struct {
	File   string `json:"file" binding:"required"`
	Folder string `json:"folder" binding:"omitempty,max=100"`
}

// decodeImage accepts a data URL or bare base64 and returns the bytes with
// their sniffed MIME type.
func decodeImage(file string) ([]byte, *mimetype.MIME, error) {
	encoded := strings.TrimSpace(file)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 || !strings.HasSuffix(encoded[:comma], ";base64") {
			return nil, nil, errBadBase64
		}
		encoded = encoded[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageSize+2 {
		return nil, nil, errTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, errBadBase64
	}
	if len(data) == 0 {
		return nil, nil, errBadBase64
	}
	if len(data) > MaxImageSize {
		return nil, nil, errTooLarge
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, nil, errNotImage
	}
	return data, mime, nil
}

func (m *MediaModule) save(c *gin.Context, prefix, file string) (*Image, bool) {
	data, mime, err := decodeImage(file)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}

	key := path.Join(prefix, uuid.NewString()+mime.Extension())
	if err := m.store.Put(c.Request.Context(), key, mime.String(), data); err != nil {
		m.log.Error().Err(err).Str("key", key).Msg("failed to store image")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to store image"})
		return nil, false
	}

	url := m.store.URL(key)
	return &Image{ID: key, URL: url, Thumbnail: url, Size: int64(len(data)), CreatedAt: time.Now().UTC()}, true
}

func (m *MediaModule) bind(c *gin.Context, req *uploadRequest) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errTooLarge.Error()})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return false
	}
	return true
}

func (m *MediaModule) upload(c *gin.Context) {
	var req uploadRequest
	if !m.bind(c, &req) {
		return
	}

	folder := strings.Trim(strings.ToLower(req.Folder), "/")
	if folder == "" {
		folder = defaultFolder
	}
	// users/ holds the per-user libraries and is only written through /api/images
	if !folderPattern.MatchString(folder) || folder == "users" || strings.HasPrefix(folder, "users/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid folder"})
		return
	}

	image, ok := m.save(c, folder, req.File)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": image.URL})
}

func userPrefix(userID uint) string {
	return fmt.Sprintf("users/%d/", userID)
}

func (m *MediaModule) listImages(c *gin.Context) {
	prefix := userPrefix(auth.CurrentUser(c).ID)
	objects, err := m.store.List(c.Request.Context(), prefix)
	if err != nil {
		m.log.Error().Err(err).Str("prefix", prefix).Msg("failed to list images")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load images"})
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	images := make([]Image, 0, len(objects))
	for _, obj := range objects {
		url := m.store.URL(obj.Key)
		images = append(images, Image{
			ID:        obj.Key,
			URL:       url,
			Thumbnail: url,
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

func (m *MediaModule) createImage(c *gin.Context) {
	var req uploadRequest
	if !m.bind(c, &req) {
		return
	}

	image, ok := m.save(c, userPrefix(auth.CurrentUser(c).ID), req.File)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, image)
}

func (m *MediaModule) deleteImage(c *gin.Context) {
	key := c.Query("id")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if !strings.HasPrefix(key, userPrefix(auth.CurrentUser(c).ID)) || strings.Contains(key, "..") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if err := m.store.Delete(c.Request.Context(), key); err != nil {
		m.log.Error().Err(err).Str("key", key).Msg("failed to delete image")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to delete image"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

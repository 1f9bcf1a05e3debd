package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jyurniq/common"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, found := store.Get(ctx, "/b/lisbon")
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "/b/lisbon", "<h1>Lisbon</h1>"))
	html, found := store.Get(ctx, "/b/lisbon")
	assert.True(t, found)
	assert.Equal(t, "<h1>Lisbon</h1>", html)

	require.NoError(t, InvalidateBlog(ctx, store, "lisbon"))
	_, found = store.Get(ctx, "/b/lisbon")
	assert.False(t, found)

	// deleting missing keys is fine
	assert.NoError(t, store.Delete(ctx, "/nope"))
}

func TestFileStore_Expiry(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "/", "home"))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(store.path("/"), old, old))

	_, found := store.Get(ctx, "/")
	assert.False(t, found)

	require.NoError(t, store.Purge())
	_, err = os.Stat(store.path("/"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(&common.Config{CacheBackend: "none"})
	assert.NoError(t, err)
	assert.Nil(t, store)

	_, err = NewStore(&common.Config{CacheBackend: "redis"})
	assert.Error(t, err)

	_, err = NewStore(&common.Config{CacheBackend: "memcached"})
	assert.Error(t, err)

	store, err = NewStore(&common.Config{CacheBackend: "file", CacheDir: t.TempDir(), CacheTTL: time.Minute})
	assert.NoError(t, err)
	assert.Equal(t, "file", store.Name())

	store, err = NewStore(&common.Config{CacheBackend: "redis", RedisURL: "redis://localhost:6379/0", CacheTTL: time.Minute})
	assert.NoError(t, err)
	assert.Equal(t, "redis", store.Name())
}

func TestCacheMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := NewFileStore(t.TempDir(), time.Minute)
	require.NoError(t, err)

	renders := 0
	router := gin.New()
	router.Use(CacheMiddleware(store))
	router.GET("/embed/:slug", func(c *gin.Context) {
		renders++
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<p>card</p>"))
	})
	router.GET("/missing", func(c *gin.Context) {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("nope"))
	})

	for i, want := range []string{"MISS", "HIT"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/embed/goa", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, want, w.Header().Get("X-Cache"))
		assert.Equal(t, "<p>card</p>", w.Body.String())
	}
	assert.Equal(t, 1, renders)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/missing", nil)
	router.ServeHTTP(w, req)
	_, found := store.Get(context.Background(), "/missing")
	assert.False(t, found)
}

func TestCacheMiddleware_NilStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CacheMiddleware(nil))
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, "ok", w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))
}

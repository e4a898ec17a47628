package ingest

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AvengeMedia/dankbooru/internal/catalog"
	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBatch = `{
  "tags": [{"name": "touhou", "category": "copyright", "post_count": 0}],
  "aliases": {"reimu": "hakurei_reimu"},
  "users": [{"id": 1, "name": "alice"}],
  "pools": [{"id": 10, "name": "touhou_comics", "category": "series", "post_ids": [2, 1]}],
  "saved_searches": [{"user_id": 1, "label": "cats", "post_ids": [1]}],
  "posts": [
    {"id": 1, "tags": ["touhou"], "rating": "s", "score": 3, "file_ext": "png",
     "md5": "aaa", "created_at": "2024-01-01T00:00:00Z", "uploader_id": 1,
     "category_tags": {"character": ["hakurei_reimu"]}, "favorited_by": [1]},
    {"id": 2, "tags": ["touhou"], "rating": "q", "score": 9, "file_ext": "jpg",
     "md5": "bbb", "created_at": "2024-01-02T00:00:00Z", "uploader_id": 1}
  ]
}`

type env struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	posts   *poststore.Store
	ing     *Ingester
	dir     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.Default()
	cfg.WorkerCount = 2
	cfg.Actor.ID = 7

	c, err := catalog.Open(filepath.Join(tmp, "catalog.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	s, err := poststore.Open(filepath.Join(tmp, "posts.bleve"), c)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	spool := filepath.Join(tmp, "spool")
	require.NoError(t, os.MkdirAll(spool, 0755))

	return &env{cfg: cfg, catalog: c, posts: s, ing: New(cfg, c, s), dir: spool}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestIngest_Batch(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(testBatch), 0644))

	s, err := e.ing.IngestPaths(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Added)

	tag, found, err := e.catalog.Tag("touhou")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), tag.PostCount)
	assert.Equal(t, "copyright", tag.Category)

	tag, found, err = e.catalog.Tag("hakurei_reimu")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "character", tag.Category)

	aliased, err := e.catalog.ToAliased([]string{"reimu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hakurei_reimu"}, aliased)

	favs, err := e.catalog.FavoritePostIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, favs)

	p, err := e.posts.Get(2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(9), p.Score)

	// Unchanged files are skipped.
	s, err = e.ing.IngestPaths(context.Background(), []string{e.dir})
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Added)
	assert.Equal(t, int64(1), s.Unchanged)

	tag, _, err = e.catalog.Tag("touhou")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tag.PostCount)
}

func TestIngest_ReapplyDoesNotRecount(t *testing.T) {
	e := newEnv(t)

	b, err := DecodeBatch(strings.NewReader(testBatch))
	require.NoError(t, err)
	require.NoError(t, e.ing.Apply(b))
	require.NoError(t, e.ing.Apply(b))

	tag, _, err := e.catalog.Tag("touhou")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tag.PostCount)

	id, err := e.catalog.NextPostID()
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestDecodeBatch_UnknownField(t *testing.T) {
	_, err := DecodeBatch(strings.NewReader(`{"postz": []}`))
	assert.Error(t, err)
}

func TestIngest_Image(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "a.png")
	writePNG(t, path, 4, 3)

	s, err := e.ing.IngestDir(context.Background(), e.dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Added)
	assert.Equal(t, int64(0), s.Failed)

	meta, found, err := e.catalog.File(path)
	require.NoError(t, err)
	require.True(t, found)
	require.NotZero(t, meta.PostID)

	p, err := e.posts.Get(meta.PostID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(4), p.Width)
	assert.Equal(t, int64(3), p.Height)
	assert.Equal(t, "png", p.FileExt)
	assert.Equal(t, "q", p.Rating)
	assert.Equal(t, int64(7), p.UploaderID)
	assert.Len(t, p.MD5, 32)

	require.NoError(t, e.ing.Remove(path))
	p, err = e.posts.Get(meta.PostID)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, found, err = e.catalog.File(path)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIngest_ImageTags(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "tagged.png")
	writePNG(t, path, 2, 2)

	if err := xattr.Set(path, TagsAttr, []byte("Touhou, hakurei reimu,rating:explicit")); err != nil {
		t.Skipf("extended attributes unsupported: %v", err)
	}

	require.NoError(t, e.ing.IngestFile(path))

	meta, _, err := e.catalog.File(path)
	require.NoError(t, err)
	p, err := e.posts.Get(meta.PostID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []string{"touhou", "hakurei_reimu"}, p.Tags)
	assert.Equal(t, "e", p.Rating)
}

func TestIngest_BadImage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "broken.jpg"), []byte("not an image"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "notes.txt"), []byte("ignored"), 0644))

	s, err := e.ing.IngestDir(context.Background(), e.dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(0), s.Added)
}

func TestShouldIngest(t *testing.T) {
	e := newEnv(t)
	assert.True(t, e.ing.ShouldIngest("/x/batch.JSON"))
	assert.True(t, e.ing.ShouldIngest("/x/a.jpeg"))
	assert.False(t, e.ing.ShouldIngest("/x/a.txt"))
}

func TestFileExt(t *testing.T) {
	assert.Equal(t, "jpg", fileExt("jpeg"))
	assert.Equal(t, "png", fileExt("png"))
}

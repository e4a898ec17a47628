package ingest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/pkg/xattr"
	"github.com/rwcarlsen/goexif/exif"
)

// TagsAttr is the extended attribute holding a file's comma separated tags.
const TagsAttr = "user.xdg.tags"

const (
	defaultRating = "q"
	untaggedTag   = "tagme"
)

// readImagePost builds a post from an image file. The id is left for the
// caller to assign.
func readImagePost(path string, info os.FileInfo) (*poststore.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	post := &poststore.Post{
		Rating:    defaultRating,
		Width:     int64(cfg.Width),
		Height:    int64(cfg.Height),
		FileSize:  info.Size(),
		FileExt:   fileExt(format),
		MD5:       hex.EncodeToString(sum[:]),
		CreatedAt: captureTime(data, info.ModTime()),
		UpdatedAt: info.ModTime().UTC(),
	}

	for _, tag := range readTags(path) {
		if rating, ok := strings.CutPrefix(tag, "rating:"); ok {
			if rating != "" {
				post.Rating = rating[:1]
			}
			continue
		}
		post.Tags = append(post.Tags, tag)
	}
	if len(post.Tags) == 0 {
		post.Tags = []string{untaggedTag}
	}
	return post, nil
}

func fileExt(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// captureTime returns the EXIF original date, or fallback when the image
// carries none.
func captureTime(data []byte, fallback time.Time) time.Time {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return fallback.UTC()
	}
	t, err := x.DateTime()
	if err != nil {
		return fallback.UTC()
	}
	return t.UTC()
}

// readTags returns the normalized tags stored in the file's TagsAttr.
func readTags(path string) []string {
	raw, err := xattr.Get(path, TagsAttr)
	if err != nil {
		log.Debugf("no tags on %s: %v", path, err)
		return nil
	}

	var tags []string
	for _, part := range strings.Split(string(raw), ",") {
		if tag := query.NormalizeTagName(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

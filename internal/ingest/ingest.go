// Package ingest loads posts into the catalog and post store from JSON
// batches and image files.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/catalog"
	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"golang.org/x/sync/errgroup"
)

type Ingester struct {
	config  *config.Config
	catalog *catalog.Catalog
	posts   *poststore.Store
}

// Summary counts what one ingest run did.
type Summary struct {
	Added     int64         `json:"added"`
	Updated   int64         `json:"updated"`
	Unchanged int64         `json:"unchanged"`
	Failed    int64         `json:"failed"`
	Took      time.Duration `json:"took"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdded
	outcomeUpdated
	outcomeUnchanged
)

func New(cfg *config.Config, c *catalog.Catalog, posts *poststore.Store) *Ingester {
	return &Ingester{config: cfg, catalog: c, posts: posts}
}

func isBatchFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// ShouldIngest reports whether path has an ingestable extension.
func (i *Ingester) ShouldIngest(path string) bool {
	return isBatchFile(path) || i.config.IsImageFile(path)
}

// IngestFile ingests one file unless it is unchanged since the last run.
func (i *Ingester) IngestFile(path string) error {
	_, err := i.ingestFile(path)
	return err
}

func (i *Ingester) ingestFile(path string) (outcome, error) {
	if !i.ShouldIngest(path) {
		return outcomeSkipped, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return outcomeSkipped, errdefs.NewCustomError(errdefs.ErrTypeFileAccessDenied, path, err)
		}
		return outcomeSkipped, err
	}
	if info.IsDir() {
		return outcomeSkipped, nil
	}

	prev, seen, err := i.catalog.File(path)
	if err != nil {
		return outcomeSkipped, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, path, err)
	}
	if seen && prev.ModTime.Equal(info.ModTime()) && prev.Size == info.Size() {
		return outcomeUnchanged, nil
	}

	meta := catalog.FileMeta{ModTime: info.ModTime(), Size: info.Size()}
	if isBatchFile(path) {
		err = i.ingestBatchFile(path)
	} else {
		meta.PostID, err = i.ingestImage(path, info, prev.PostID)
	}
	if err != nil {
		return outcomeSkipped, errdefs.NewCustomError(errdefs.ErrTypeIngestFailed, path, err)
	}

	if err := i.catalog.PutFile(path, meta); err != nil {
		return outcomeSkipped, errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, path, err)
	}

	log.Debugf("ingested %s", path)
	if seen {
		return outcomeUpdated, nil
	}
	return outcomeAdded, nil
}

func (i *Ingester) ingestBatchFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := DecodeBatch(f)
	if err != nil {
		return err
	}
	return i.Apply(b)
}

// Apply writes a batch. Tag counts and favorites are only recorded for posts
// that were not indexed before.
func (i *Ingester) Apply(b *Batch) error {
	if err := b.applyCatalog(i.catalog); err != nil {
		return errdefs.NewCustomError(errdefs.ErrTypeCatalogFailed, "batch catalog entries", err)
	}

	for _, p := range b.Posts {
		if err := i.recordPost(p); err != nil {
			return err
		}
	}
	if err := i.posts.Put(b.Posts...); err != nil {
		return err
	}

	log.Infof("applied batch of %d records", b.Size())
	return nil
}

// recordPost updates catalog counters for a post about to be indexed.
func (i *Ingester) recordPost(p *poststore.Post) error {
	if err := i.catalog.ObservePostID(p.ID); err != nil {
		return err
	}

	existing, err := i.posts.Get(p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := i.catalog.AddPostTags(p.Tags, "general"); err != nil {
		return err
	}
	for category, tags := range p.CategoryTags {
		if err := i.catalog.AddPostTags(tags, category); err != nil {
			return err
		}
	}
	for _, userID := range p.FavoritedBy {
		if err := i.catalog.AddFavorite(userID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingester) ingestImage(path string, info os.FileInfo, postID int64) (int64, error) {
	post, err := readImagePost(path, info)
	if err != nil {
		return 0, err
	}

	if postID == 0 {
		if postID, err = i.catalog.NextPostID(); err != nil {
			return 0, err
		}
	}
	post.ID = postID
	post.UploaderID = i.config.Actor.ID

	if err := i.recordPost(post); err != nil {
		return 0, err
	}
	if err := i.posts.Put(post); err != nil {
		return 0, err
	}
	return postID, nil
}

// Remove forgets a file. A file ingested as a single post also removes the
// post.
func (i *Ingester) Remove(path string) error {
	meta, seen, err := i.catalog.File(path)
	if err != nil || !seen {
		return err
	}
	if meta.PostID != 0 {
		if err := i.posts.Delete(meta.PostID); err != nil {
			return err
		}
	}
	return i.catalog.DeleteFile(path)
}

// IngestDir walks root and ingests every new or changed file, using up to
// worker_count goroutines. Individual file failures are logged and counted,
// not returned.
func (i *Ingester) IngestDir(ctx context.Context, root string) (*Summary, error) {
	start := time.Now()
	var added, updated, unchanged, failed int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(i.config.WorkerCount, 1))

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				log.Debugf("permission denied: %s", path)
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !i.ShouldIngest(path) {
			return nil
		}

		g.Go(func() error {
			result, err := i.ingestFile(path)
			if err != nil {
				log.Warnf("failed to ingest %s: %v", path, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			switch result {
			case outcomeAdded:
				atomic.AddInt64(&added, 1)
			case outcomeUpdated:
				atomic.AddInt64(&updated, 1)
			case outcomeUnchanged:
				atomic.AddInt64(&unchanged, 1)
			}
			return nil
		})
		return nil
	})

	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeIngestFailed, "walk failed", err)
	}

	s := &Summary{
		Added:     added,
		Updated:   updated,
		Unchanged: unchanged,
		Failed:    failed,
		Took:      time.Since(start),
	}
	log.Infof("ingest of %s complete: +%d new, ~%d updated, =%d unchanged, !%d failed, took %s",
		root, s.Added, s.Updated, s.Unchanged, s.Failed, s.Took)
	return s, nil
}

// IngestPaths ingests files and directories given on the command line.
func (i *Ingester) IngestPaths(ctx context.Context, paths []string) (*Summary, error) {
	total := &Summary{}
	start := time.Now()
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errdefs.NewCustomError(errdefs.ErrTypeIngestFailed, path, err)
		}
		if !info.IsDir() {
			switch result, err := i.ingestFile(path); {
			case err != nil:
				return nil, err
			case result == outcomeAdded:
				total.Added++
			case result == outcomeUpdated:
				total.Updated++
			case result == outcomeUnchanged:
				total.Unchanged++
			}
			continue
		}

		s, err := i.IngestDir(ctx, path)
		if err != nil {
			return nil, err
		}
		total.Added += s.Added
		total.Updated += s.Updated
		total.Unchanged += s.Unchanged
		total.Failed += s.Failed
	}
	total.Took = time.Since(start)
	return total, nil
}

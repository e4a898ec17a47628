// Package service wires the catalog, the post store, the compiler and the
// ingester into the object the CLI and the servers share.
package service

import (
	"context"
	"os"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/catalog"
	"github.com/AvengeMedia/dankbooru/internal/compiler"
	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/ingest"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
)

type Service struct {
	config   *config.Config
	catalog  *catalog.Catalog
	posts    *poststore.Store
	compiler *compiler.Compiler
	ingester *ingest.Ingester
}

type SearchResult struct {
	Posts     []*poststore.Post `json:"posts"`
	Total     uint64            `json:"total"`
	Order     string            `json:"order"`
	Signature string            `json:"signature"`
	Took      time.Duration     `json:"took"`
}

type Stats struct {
	Posts   uint64        `json:"posts"`
	Catalog catalog.Stats `json:"catalog"`
}

// Open opens the catalog and the post index named by cfg.
func Open(cfg *config.Config) (*Service, error) {
	cat, err := catalog.Open(cfg.CatalogPath, cfg.WildcardLimit)
	if err != nil {
		return nil, err
	}

	posts, err := poststore.Open(cfg.IndexPath, cat)
	if err != nil {
		cat.Close()
		return nil, err
	}

	return &Service{
		config:   cfg,
		catalog:  cat,
		posts:    posts,
		compiler: compiler.FromConfig(cfg, cat.Resolvers()),
		ingester: ingest.New(cfg, cat, posts),
	}, nil
}

func (s *Service) Compiler() *compiler.Compiler {
	return s.compiler
}

func (s *Service) Ingester() *ingest.Ingester {
	return s.ingester
}

// DefaultActor is the configured actor used when a request names none.
func (s *Service) DefaultActor() *query.Actor {
	return compiler.ActorFromConfig(s.config.Actor)
}

// Search compiles q for actor and runs it against the post index.
func (s *Service) Search(ctx context.Context, q string, actor *query.Actor, opts poststore.SearchOptions) (*SearchResult, error) {
	if actor == nil {
		actor = s.DefaultActor()
	}

	p, err := s.compiler.Compile(q, actor)
	if err != nil {
		return nil, err
	}

	res, err := s.posts.Search(ctx, p, opts)
	if err != nil {
		return nil, err
	}

	log.Debugf("search %q: %d of %d posts in %s", q, len(res.Posts), res.Total, res.Took)
	return &SearchResult{
		Posts:     res.Posts,
		Total:     res.Total,
		Order:     p.Sort.Name,
		Signature: compiler.Signature(q),
		Took:      res.Took,
	}, nil
}

func (s *Service) Explain(q string, actor *query.Actor) (*compiler.Explanation, error) {
	if actor == nil {
		actor = s.DefaultActor()
	}
	return s.compiler.Explain(q, actor)
}

func (s *Service) Normalize(q string, aliases, sorted bool) (string, error) {
	return s.compiler.Normalize(q, aliases, sorted)
}

func (s *Service) Stats() (*Stats, error) {
	posts, err := s.posts.Stats()
	if err != nil {
		return nil, err
	}
	cat, err := s.catalog.Stats()
	if err != nil {
		return nil, err
	}
	return &Stats{Posts: posts.Posts, Catalog: cat}, nil
}

// Import ingests the given files and directories.
func (s *Service) Import(ctx context.Context, paths ...string) (*ingest.Summary, error) {
	return s.ingester.IngestPaths(ctx, paths)
}

// Sync ingests everything new or changed in the spool directory.
func (s *Service) Sync(ctx context.Context) (*ingest.Summary, error) {
	if err := os.MkdirAll(s.config.SpoolDir, 0755); err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeIngestFailed, "failed to create spool dir", err)
	}
	return s.ingester.IngestDir(ctx, s.config.SpoolDir)
}

func (s *Service) Close() error {
	perr := s.posts.Close()
	cerr := s.catalog.Close()
	if perr != nil {
		return perr
	}
	return cerr
}

package api

import (
	"context"

	"github.com/AvengeMedia/dankbooru/internal/compiler"
	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/ingest"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/AvengeMedia/dankbooru/internal/service"
	"github.com/danielgtaylor/huma/v2"
)

type ServiceInterface interface {
	Search(ctx context.Context, q string, actor *query.Actor, opts poststore.SearchOptions) (*service.SearchResult, error)
	Explain(q string, actor *query.Actor) (*compiler.Explanation, error)
	Normalize(q string, aliases, sorted bool) (string, error)
	Stats() (*service.Stats, error)
	Sync(ctx context.Context) (*ingest.Summary, error)
}

type WatcherInterface interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// Server holds the handler dependencies. A nil Actor searches as the
// service's configured default actor.
type Server struct {
	Service ServiceInterface
	Watcher WatcherInterface
	Actor   *query.Actor
}

type PostsInput struct {
	Tags  string `query:"tags" doc:"Tag query" example:"touhou score:>10 order:score"`
	Limit int    `query:"limit" default:"20" minimum:"1" maximum:"1000" doc:"Posts per page"`
	Page  int    `query:"page" default:"1" minimum:"1" doc:"Page number, starting at 1"`
}

type PostsOutput struct {
	Signature string `header:"X-Search-Signature" doc:"Cache key for the query"`
	Body      *service.SearchResult
}

type TagsInput struct {
	Tags string `query:"tags" doc:"Tag query" example:"~reimu -marisa rating:s"`
}

type ExplainOutput struct {
	Body *compiler.Explanation
}

type NormalizeInput struct {
	Tags    string `query:"tags" doc:"Tag query" example:"Touhou reimu"`
	Aliases bool   `query:"aliases" default:"true" doc:"Replace aliased tags"`
	Sort    bool   `query:"sort" default:"true" doc:"Sort tokens"`
}

type NormalizeOutput struct {
	Body struct {
		Query string `json:"query" example:"hakurei_reimu touhou"`
	}
}

type StatsOutput struct {
	Body *service.Stats
}

type SyncOutput struct {
	Body struct {
		Status string `json:"status" example:"spool sync started"`
	}
}

type WatchStatusOutput struct {
	Body struct {
		Status string `json:"status" enum:"running,stopped" example:"running"`
	}
}

type WatchActionOutput struct {
	Body struct {
		Status string `json:"status" example:"watcher started"`
	}
}

// queryError maps compile errors to their HTTP status.
func queryError(err error) error {
	switch {
	case errdefs.IsType(err, errdefs.ErrTypeTagLimitExceeded):
		return huma.Error422UnprocessableEntity(err.Error())
	case errdefs.IsType(err, errdefs.ErrTypeNotAuthorized):
		return huma.Error403Forbidden(err.Error())
	case errdefs.IsType(err, errdefs.ErrTypeUnresolvableEntity):
		return huma.Error404NotFound(err.Error())
	}
	log.Errorf("query failed: %v", err)
	return huma.Error500InternalServerError("search failed", err)
}

func RegisterHandlers(srv *Server, api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "searchPosts",
		Summary:     "Search posts",
		Description: "Compile a tag query and return one page of matching posts",
		Method:      "GET",
		Path:        "/posts",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *PostsInput) (*PostsOutput, error) {
		opts := poststore.SearchOptions{
			Limit:  input.Limit,
			Offset: (max(input.Page, 1) - 1) * input.Limit,
		}

		result, err := srv.Service.Search(ctx, input.Tags, srv.Actor, opts)
		if err != nil {
			return nil, queryError(err)
		}
		return &PostsOutput{Signature: result.Signature, Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "explain",
		Summary:     "Explain a query",
		Description: "Return the tokens, parsed query and plan for a tag query without running it",
		Method:      "GET",
		Path:        "/explain",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *TagsInput) (*ExplainOutput, error) {
		result, err := srv.Service.Explain(input.Tags, srv.Actor)
		if err != nil {
			return nil, queryError(err)
		}
		return &ExplainOutput{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "normalize",
		Summary:     "Normalize a query",
		Description: "Return the canonical form of a tag query",
		Method:      "GET",
		Path:        "/normalize",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *NormalizeInput) (*NormalizeOutput, error) {
		normalized, err := srv.Service.Normalize(input.Tags, input.Aliases, input.Sort)
		if err != nil {
			return nil, queryError(err)
		}
		out := &NormalizeOutput{}
		out.Body.Query = normalized
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Summary:     "Get index statistics",
		Description: "Returns post and catalog counts",
		Method:      "GET",
		Path:        "/stats",
		Tags:        []string{"Index"},
	}, func(ctx context.Context, input *struct{}) (*StatsOutput, error) {
		stats, err := srv.Service.Stats()
		if err != nil {
			return nil, huma.Error500InternalServerError("stats failed", err)
		}
		return &StatsOutput{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync",
		Summary:     "Sync the spool directory",
		Description: "Ingest new and changed files from the spool directory (async operation)",
		Method:      "POST",
		Path:        "/sync",
		Tags:        []string{"Index"},
	}, func(ctx context.Context, input *struct{}) (*SyncOutput, error) {
		go func() {
			if _, err := srv.Service.Sync(context.Background()); err != nil {
				log.Errorf("sync failed: %v", err)
			}
		}()

		out := &SyncOutput{}
		out.Body.Status = "spool sync started"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "watchStart",
		Summary:     "Start spool watcher",
		Description: "Ingest files as they are written to the spool directory",
		Method:      "POST",
		Path:        "/watch/start",
		Tags:        []string{"Watch"},
	}, func(ctx context.Context, input *struct{}) (*WatchActionOutput, error) {
		if srv.Watcher.IsRunning() {
			return nil, huma.Error409Conflict("watcher already running")
		}

		if err := srv.Watcher.Start(); err != nil {
			return nil, huma.Error500InternalServerError("failed to start watcher", err)
		}

		out := &WatchActionOutput{}
		out.Body.Status = "watcher started"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "watchStop",
		Summary:     "Stop spool watcher",
		Method:      "POST",
		Path:        "/watch/stop",
		Tags:        []string{"Watch"},
	}, func(ctx context.Context, input *struct{}) (*WatchActionOutput, error) {
		if !srv.Watcher.IsRunning() {
			return nil, huma.Error409Conflict("watcher not running")
		}

		if err := srv.Watcher.Stop(); err != nil {
			return nil, huma.Error500InternalServerError("failed to stop watcher", err)
		}

		out := &WatchActionOutput{}
		out.Body.Status = "watcher stopped"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "watchStatus",
		Summary:     "Get watcher status",
		Method:      "GET",
		Path:        "/watch/status",
		Tags:        []string{"Watch"},
	}, func(ctx context.Context, input *struct{}) (*WatchStatusOutput, error) {
		out := &WatchStatusOutput{}
		out.Body.Status = "stopped"
		if srv.Watcher.IsRunning() {
			out.Body.Status = "running"
		}
		return out, nil
	})
}

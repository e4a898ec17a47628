package server

import (
	"context"
	"fmt"
	"maps"
	"net"
	"slices"

	"github.com/AvengeMedia/dankbooru/internal/compiler"
	"github.com/AvengeMedia/dankbooru/internal/ingest"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/AvengeMedia/dankbooru/internal/server/models"
	"github.com/AvengeMedia/dankbooru/internal/service"
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

type handlerFunc func(conn net.Conn, req models.Request)

type Router struct {
	service  ServiceInterface
	watcher  WatcherInterface
	handlers map[string]handlerFunc
}

func NewRouter(svc ServiceInterface, watcher WatcherInterface) *Router {
	r := &Router{
		service: svc,
		watcher: watcher,
	}
	r.handlers = map[string]handlerFunc{
		"ping": func(conn net.Conn, req models.Request) {
			models.Respond(conn, req.ID, "pong")
		},
		"search":       r.handleSearch,
		"explain":      r.handleExplain,
		"normalize":    r.handleNormalize,
		"sync":         r.handleSync,
		"stats":        r.handleStats,
		"watch.start":  r.handleWatchStart,
		"watch.stop":   r.handleWatchStop,
		"watch.status": r.handleWatchStatus,
	}
	return r
}

// Methods lists the request methods the router answers, sorted.
func (r *Router) Methods() []string {
	return slices.Sorted(maps.Keys(r.handlers))
}

func (r *Router) RouteRequest(conn net.Conn, req models.Request) {
	log.Debugf("socket request: method=%s id=%d", req.Method, req.ID)

	handle, ok := r.handlers[req.Method]
	if !ok {
		models.RespondError(conn, req.ID, fmt.Sprintf("unknown method: %s", req.Method))
		return
	}
	handle(conn, req)
}

func (r *Router) handleSearch(conn net.Conn, req models.Request) {
	q, _ := req.Params["query"].(string)

	opts := poststore.SearchOptions{Limit: poststore.DefaultLimit}
	if l, ok := req.Params["limit"].(float64); ok {
		opts.Limit = int(l)
	}
	if o, ok := req.Params["offset"].(float64); ok {
		opts.Offset = int(o)
	}

	result, err := r.service.Search(context.Background(), q, nil, opts)
	if err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("search failed: %v", err))
		return
	}

	models.Respond(conn, req.ID, result)
}

func (r *Router) handleExplain(conn net.Conn, req models.Request) {
	q, _ := req.Params["query"].(string)

	result, err := r.service.Explain(q, nil)
	if err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("explain failed: %v", err))
		return
	}

	models.Respond(conn, req.ID, result)
}

func (r *Router) handleNormalize(conn net.Conn, req models.Request) {
	q, _ := req.Params["query"].(string)
	aliases, sorted := true, true
	if v, ok := req.Params["aliases"].(bool); ok {
		aliases = v
	}
	if v, ok := req.Params["sort"].(bool); ok {
		sorted = v
	}

	normalized, err := r.service.Normalize(q, aliases, sorted)
	if err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("normalize failed: %v", err))
		return
	}

	models.Respond(conn, req.ID, map[string]string{"query": normalized})
}

func (r *Router) handleSync(conn net.Conn, req models.Request) {
	go func() {
		if _, err := r.service.Sync(context.Background()); err != nil {
			log.Errorf("sync failed: %v", err)
		}
	}()

	models.Respond(conn, req.ID, map[string]string{"status": "spool sync started"})
}

func (r *Router) handleStats(conn net.Conn, req models.Request) {
	stats, err := r.service.Stats()
	if err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("stats failed: %v", err))
		return
	}
	models.Respond(conn, req.ID, stats)
}

func (r *Router) handleWatchStart(conn net.Conn, req models.Request) {
	if r.watcher.IsRunning() {
		models.RespondError(conn, req.ID, "watcher already running")
		return
	}

	if err := r.watcher.Start(); err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("failed to start watcher: %v", err))
		return
	}

	models.Respond(conn, req.ID, map[string]string{"status": "watcher started"})
}

func (r *Router) handleWatchStop(conn net.Conn, req models.Request) {
	if !r.watcher.IsRunning() {
		models.RespondError(conn, req.ID, "watcher not running")
		return
	}

	if err := r.watcher.Stop(); err != nil {
		models.RespondError(conn, req.ID, fmt.Sprintf("failed to stop watcher: %v", err))
		return
	}

	models.Respond(conn, req.ID, map[string]string{"status": "watcher stopped"})
}

func (r *Router) handleWatchStatus(conn net.Conn, req models.Request) {
	status := "stopped"
	if r.watcher.IsRunning() {
		status = "running"
	}

	models.Respond(conn, req.ID, map[string]string{"status": status})
}

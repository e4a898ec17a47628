package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AvengeMedia/dankbooru/internal/client"
	"github.com/AvengeMedia/dankbooru/internal/compiler"
	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/ingest"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/poststore"
	"github.com/AvengeMedia/dankbooru/internal/query"
	"github.com/AvengeMedia/dankbooru/internal/server"
	"github.com/AvengeMedia/dankbooru/internal/service"
	"github.com/AvengeMedia/dankbooru/internal/watcher"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	Version   string = "dev"
	buildTime string = "unknown"
	commit    string = "unknown"

	configFile string
	debug      bool

	indexPath   string
	catalogPath string
	spoolDir    string
	listenAddr  string
	workerCount int
	noWatch     bool
	httpOnly    bool
	socketOnly  bool

	searchLimit int
	searchPage  int
	searchJSON  bool

	normalizeNoAliases bool
	normalizeNoSort    bool
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var rootCmd = &cobra.Command{
	Use:   "dbooru",
	Short: "Booru post search service",
	Long:  "Compiles booru tag queries into search plans and runs them against a local post index",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetLevel("debug")
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search service",
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search posts with a tag query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSearch,
}

var explainCmd = &cobra.Command{
	Use:   "explain [query]",
	Short: "Show the tokens, parsed query and plan for a tag query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExplain,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [query]",
	Short: "Print the canonical form of a tag query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNormalize,
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List accepted order: values and metatags",
	RunE:  runOrders,
}

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Ingest batch files, images or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the post index",
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest new and changed files from the spool directory",
	RunE:  runIndexSync,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runIndexStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the spool watcher",
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check watcher status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(client.WatchStatus, "Watcher status: ")
	},
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start spool watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(client.WatchStart, "")
	},
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop spool watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(client.WatchStop, "")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		log.Infof("dbooru version %s", Version)
		log.Infof("  Build time: %s", buildTime)
		log.Infof("  Commit: %s", commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ~/.config/dankbooru/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "post index path")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog database path")

	serveCmd.Flags().StringVar(&spoolDir, "spool", "", "spool directory to watch")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address")
	serveCmd.Flags().IntVar(&workerCount, "workers", 0, "number of ingest workers")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable spool watching")
	serveCmd.Flags().BoolVar(&httpOnly, "http", false, "run HTTP server only (no unix socket)")
	serveCmd.Flags().BoolVar(&socketOnly, "socket", false, "run unix socket server only (no HTTP)")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", poststore.DefaultLimit, "posts per page")
	searchCmd.Flags().IntVarP(&searchPage, "page", "p", 1, "page number")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results in JSON format")

	normalizeCmd.Flags().BoolVar(&normalizeNoAliases, "no-aliases", false, "keep aliased tags")
	normalizeCmd.Flags().BoolVar(&normalizeNoSort, "no-sort", false, "keep token order")

	importCmd.Flags().IntVar(&workerCount, "workers", 0, "number of ingest workers")

	indexCmd.AddCommand(indexSyncCmd)
	indexCmd.AddCommand(indexStatusCmd)

	watchCmd.AddCommand(watchStatusCmd)
	watchCmd.AddCommand(watchStartCmd)
	watchCmd.AddCommand(watchStopCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func buildConfig() *config.Config {
	cfgPath := configFile
	if cfgPath == "" {
		cfgPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if !debug && cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}

	if indexPath != "" {
		cfg.IndexPath = indexPath
	}
	if catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}
	if spoolDir != "" {
		cfg.SpoolDir = spoolDir
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if workerCount > 0 {
		cfg.WorkerCount = workerCount
	}

	return cfg
}

// openLocal opens the stores directly. It fails while a server holds them.
func openLocal() (*service.Service, error) {
	svc, err := service.Open(buildConfig())
	if err != nil {
		return nil, fmt.Errorf("server not running and cannot open index: %v", err)
	}
	return svc, nil
}

func queryArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(cmd *cobra.Command, args []string) error {
	if httpOnly && socketOnly {
		return fmt.Errorf("cannot specify both --http and --socket flags")
	}

	cfg := buildConfig()

	svc, err := service.Open(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	go func() {
		summary, err := svc.Sync(context.Background())
		if err != nil {
			log.Errorf("initial spool sync failed: %v", err)
			return
		}
		log.Infof("initial spool sync: %d added, %d updated, %d failed in %s",
			summary.Added, summary.Updated, summary.Failed, summary.Took)
	}()

	w, err := watcher.New(svc.Ingester(), cfg)
	if err != nil {
		return err
	}

	if !noWatch {
		if err := w.Start(); err != nil {
			log.Errorf("failed to start watcher: %v", err)
			log.Infof("continuing without spool watching")
		}
	}

	var httpServer *server.HTTPServer
	var unixServer *server.UnixServer

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)

	if !socketOnly {
		httpServer = server.NewHTTP(cfg.ListenAddr, svc, w)
		go func() {
			errChan <- httpServer.Start()
		}()
	}

	if !httpOnly {
		unixServer = server.NewUnix(server.NewRouter(svc, w))
		go func() {
			errChan <- unixServer.Start()
		}()
	}

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Infof("received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if w.IsRunning() {
			w.Stop()
		}

		if unixServer != nil {
			unixServer.Close()
		}
		if httpServer != nil {
			return httpServer.Shutdown(ctx)
		}
		return nil
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := queryArg(args)
	opts := poststore.SearchOptions{
		Limit:  searchLimit,
		Offset: (max(searchPage, 1) - 1) * searchLimit,
	}

	result, err := client.Search(q, opts.Limit, opts.Offset)
	if err != nil {
		svc, oerr := openLocal()
		if oerr != nil {
			return oerr
		}
		defer svc.Close()

		result, err = svc.Search(context.Background(), q, nil, opts)
		if err != nil {
			return err
		}
	}

	if searchJSON {
		return printJSON(result)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d posts, order %s", result.Total, result.Order)) +
		dimStyle.Render(fmt.Sprintf(" (%s)", result.Took)))
	for _, p := range result.Posts {
		fmt.Printf("#%d [%s] score:%d %s\n", p.ID, p.Rating, p.Score, dimStyle.Render(strings.Join(p.Tags, " ")))
	}
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	q := queryArg(args)

	result, err := client.Explain(q)
	if err != nil {
		svc, oerr := openLocal()
		if oerr != nil {
			return oerr
		}
		defer svc.Close()

		result, err = svc.Explain(q, nil)
		if err != nil {
			return err
		}
	}
	return printJSON(result)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	q := queryArg(args)

	normalized, err := client.Normalize(q, !normalizeNoAliases, !normalizeNoSort)
	if err != nil {
		svc, oerr := openLocal()
		if oerr != nil {
			return oerr
		}
		defer svc.Close()

		normalized, err = svc.Normalize(q, !normalizeNoAliases, !normalizeNoSort)
		if err != nil {
			return err
		}
	}

	fmt.Println(normalized)
	return nil
}

func runOrders(cmd *cobra.Command, args []string) error {
	c := compiler.FromConfig(buildConfig(), query.Resolvers{})

	fmt.Println(headerStyle.Render("Orders"))
	for _, name := range c.Orders() {
		fmt.Printf("  order:%s\n", name)
	}
	fmt.Println(headerStyle.Render("Metatags"))
	for _, name := range c.Metatags() {
		fmt.Printf("  %s:\n", name)
	}
	return nil
}

func printSummary(summary *ingest.Summary) {
	log.Infof("%d added, %d updated, %d unchanged, %d failed in %s",
		summary.Added, summary.Updated, summary.Unchanged, summary.Failed, summary.Took)
}

func runImport(cmd *cobra.Command, args []string) error {
	if client.Running() {
		return fmt.Errorf("server is running - copy files into its spool directory instead")
	}

	svc, err := openLocal()
	if err != nil {
		return err
	}
	defer svc.Close()

	summary, err := svc.Import(context.Background(), args...)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	status, err := client.Sync()
	if err == nil {
		log.Infof("%s", status)
		return nil
	}

	svc, err := openLocal()
	if err != nil {
		return err
	}
	defer svc.Close()

	log.Infof("starting spool sync...")
	summary, err := svc.Sync(context.Background())
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	stats, err := client.Stats()
	if err != nil {
		svc, oerr := openLocal()
		if oerr != nil {
			return oerr
		}
		defer svc.Close()

		stats, err = svc.Stats()
		if err != nil {
			return err
		}
	}

	log.Infof("Index Statistics:")
	log.Infof("  Posts: %d", stats.Posts)
	log.Infof("  Tags: %d (%d aliases)", stats.Catalog.Tags, stats.Catalog.Aliases)
	log.Infof("  Users: %d", stats.Catalog.Users)
	log.Infof("  Pools: %d", stats.Catalog.Pools)
	log.Infof("  Favorite groups: %d", stats.Catalog.FavoriteGroups)
	log.Infof("  Saved searches: %d", stats.Catalog.SavedSearches)
	log.Infof("  Favorites: %d", stats.Catalog.Favorites)
	log.Infof("  Ingested files: %d", stats.Catalog.Files)
	return nil
}

func printStatus(fn func() (string, error), prefix string) error {
	status, err := fn()
	if err != nil {
		return err
	}

	log.Infof("%s%s", prefix, status)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

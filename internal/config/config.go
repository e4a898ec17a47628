package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/BurntSushi/toml"
)

type TagCategory struct {
	Name  string `toml:"name"`
	Short string `toml:"short"`
}

// Actor is the capability snapshot used by the CLI and HTTP API, which have
// no session layer of their own.
type Actor struct {
	ID               int64  `toml:"id"`
	Name             string `toml:"name"`
	Admin            bool   `toml:"admin"`
	Member           bool   `toml:"member"`
	Voter            bool   `toml:"voter"`
	SafeMode         bool   `toml:"safe_mode"`
	AdminMode        bool   `toml:"admin_mode"`
	HideDeletedPosts bool   `toml:"hide_deleted_posts"`
}

type Config struct {
	IndexPath     string        `toml:"index_path"`
	CatalogPath   string        `toml:"catalog_path"`
	ListenAddr    string        `toml:"listen_addr"`
	SpoolDir      string        `toml:"spool_dir"`
	WorkerCount   int           `toml:"worker_count"`
	LogLevel      string        `toml:"log_level"`
	MaxTagCount   int           `toml:"max_tag_count"`
	WildcardLimit int           `toml:"wildcard_limit"`
	UnlimitedTags []string      `toml:"unlimited_tags"`
	TagCategories []TagCategory `toml:"tag_categories"`
	ImageExts     []string      `toml:"image_extensions"`
	Actor         Actor         `toml:"actor"`

	unlimited   []*regexp.Regexp
	imageExtMap map[string]bool
}

func Default() *Config {
	workerCount := runtime.NumCPU() / 2
	if workerCount < 1 {
		workerCount = 1
	}

	dataDir := getDefaultDataDir()

	cfg := &Config{
		IndexPath:     filepath.Join(dataDir, "posts.bleve"),
		CatalogPath:   filepath.Join(dataDir, "catalog.db"),
		ListenAddr:    ":43655",
		SpoolDir:      filepath.Join(dataDir, "spool"),
		WorkerCount:   workerCount,
		LogLevel:      "info",
		MaxTagCount:   6,
		WildcardLimit: 6,
		UnlimitedTags: []string{
			`^-?status:deleted$`,
			`^rating:s.*`,
			`^limit:.+`,
		},
		TagCategories: []TagCategory{
			{Name: "general", Short: "gen"},
			{Name: "artist", Short: "art"},
			{Name: "copyright", Short: "copy"},
			{Name: "character", Short: "char"},
			{Name: "meta", Short: "meta"},
		},
		ImageExts: []string{".jpg", ".jpeg", ".png", ".gif"},
		Actor: Actor{
			Name:             "Anonymous",
			HideDeletedPosts: true,
		},
	}

	if err := cfg.BuildMaps(); err != nil {
		log.Warnf("default config: %v", err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			log.Warnf("failed to create default config at %s: %v", path, err)
		} else {
			log.Infof("created default config at %s", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.BuildMaps(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	f.WriteString("# dankbooru configuration\n")
	f.WriteString("# max_tag_count bounds the number of counted tokens in a search query\n\n")

	return toml.NewEncoder(f).Encode(c)
}

func (c *Config) Validate() error {
	if c.MaxTagCount < 1 {
		return errdefs.NewCustomError(errdefs.ErrTypeInvalidConfig, fmt.Sprintf("max_tag_count must be positive, got %d", c.MaxTagCount), nil)
	}
	seen := make(map[string]bool, len(c.TagCategories))
	for _, cat := range c.TagCategories {
		if cat.Name == "" || cat.Short == "" {
			return errdefs.NewCustomError(errdefs.ErrTypeInvalidConfig, "tag category needs both name and short", nil)
		}
		if seen[cat.Short] {
			return errdefs.NewCustomError(errdefs.ErrTypeInvalidConfig, "duplicate tag category short name: "+cat.Short, nil)
		}
		seen[cat.Short] = true
	}
	return nil
}

// BuildMaps compiles the unlimited tag patterns and the image extension set.
func (c *Config) BuildMaps() error {
	c.unlimited = make([]*regexp.Regexp, 0, len(c.UnlimitedTags))
	for _, pattern := range c.UnlimitedTags {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return errdefs.NewCustomError(errdefs.ErrTypeInvalidConfig, "bad unlimited_tags pattern "+pattern, err)
		}
		c.unlimited = append(c.unlimited, re)
	}

	c.imageExtMap = make(map[string]bool, len(c.ImageExts))
	for _, ext := range c.ImageExts {
		c.imageExtMap[strings.ToLower(ext)] = true
	}
	return nil
}

// IsUnlimitedTag reports whether a query token is exempt from max_tag_count.
func (c *Config) IsUnlimitedTag(token string) bool {
	for _, re := range c.unlimited {
		if re.MatchString(token) {
			return true
		}
	}
	return false
}

func (c *Config) IsImageFile(path string) bool {
	return c.imageExtMap[strings.ToLower(filepath.Ext(path))]
}

func getDefaultDataDir() string {
	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
	} else {
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(base, "dankbooru")
}

func GetDefaultConfigPath() string {
	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "dankbooru", "config.toml")
}

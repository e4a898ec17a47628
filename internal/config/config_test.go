package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.IndexPath == "" {
		t.Error("IndexPath should not be empty")
	}

	if cfg.CatalogPath == "" {
		t.Error("CatalogPath should not be empty")
	}

	if cfg.ListenAddr != ":43655" {
		t.Errorf("ListenAddr = %v, want :43655", cfg.ListenAddr)
	}

	if cfg.MaxTagCount != 6 {
		t.Errorf("MaxTagCount = %v, want 6", cfg.MaxTagCount)
	}

	expectedWorkers := runtime.NumCPU() / 2
	if expectedWorkers < 1 {
		expectedWorkers = 1
	}
	if cfg.WorkerCount != expectedWorkers {
		t.Errorf("WorkerCount = %v, want %v", cfg.WorkerCount, expectedWorkers)
	}

	if len(cfg.TagCategories) != 5 {
		t.Errorf("TagCategories = %d entries, want 5", len(cfg.TagCategories))
	}

	if !cfg.Actor.HideDeletedPosts {
		t.Error("default actor should hide deleted posts")
	}
}

func TestConfig_IsUnlimitedTag(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{name: "status deleted", token: "status:deleted", expected: true},
		{name: "negated status deleted", token: "-status:deleted", expected: true},
		{name: "status deleted with suffix", token: "status:deletedx", expected: false},
		{name: "rating safe", token: "rating:s", expected: true},
		{name: "rating safe long", token: "rating:safe", expected: true},
		{name: "negated rating", token: "-rating:s", expected: false},
		{name: "rating explicit", token: "rating:e", expected: false},
		{name: "limit", token: "limit:100", expected: true},
		{name: "empty limit", token: "limit:", expected: false},
		{name: "uppercase status", token: "STATUS:DELETED", expected: true},
		{name: "plain tag", token: "touhou", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.IsUnlimitedTag(tt.token)
			if got != tt.expected {
				t.Errorf("IsUnlimitedTag(%v) = %v, want %v", tt.token, got, tt.expected)
			}
		})
	}
}

func TestConfig_IsImageFile(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "jpg", path: "/spool/abc.jpg", expected: true},
		{name: "uppercase png", path: "/spool/abc.PNG", expected: true},
		{name: "json batch", path: "/spool/batch.json", expected: false},
		{name: "no extension", path: "/spool/README", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.IsImageFile(tt.path)
			if got != tt.expected {
				t.Errorf("IsImageFile(%v) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestConfig_InvalidUnlimitedPattern(t *testing.T) {
	cfg := &Config{UnlimitedTags: []string{"[unclosed"}}
	if err := cfg.BuildMaps(); err == nil {
		t.Error("BuildMaps should reject an invalid pattern")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.MaxTagCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero max_tag_count should be rejected")
	}

	cfg = Default()
	cfg.TagCategories = append(cfg.TagCategories, TagCategory{Name: "generic", Short: "gen"})
	if err := cfg.Validate(); err == nil {
		t.Error("duplicate short name should be rejected")
	}
}

func TestLoad_WritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTagCount != 6 {
		t.Errorf("MaxTagCount = %v, want 6", cfg.MaxTagCount)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config was not written: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `max_tag_count = 2
unlimited_tags = ["^order:.+"]

[actor]
id = 7
name = "alice"
admin = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTagCount != 2 {
		t.Errorf("MaxTagCount = %v, want 2", cfg.MaxTagCount)
	}
	if !cfg.IsUnlimitedTag("order:score") {
		t.Error("order:score should be unlimited after override")
	}
	if cfg.IsUnlimitedTag("status:deleted") {
		t.Error("status:deleted should no longer be unlimited")
	}
	if cfg.Actor.ID != 7 || cfg.Actor.Name != "alice" || !cfg.Actor.Admin {
		t.Errorf("Actor = %+v, want id 7 alice admin", cfg.Actor)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_tag_count = \"many\""), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on a mistyped option")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("GetDefaultConfigPath() = %v, expected absolute path", path)
	}

	if filepath.Base(filepath.Dir(path)) != "dankbooru" {
		t.Errorf("GetDefaultConfigPath() = %v, expected dankbooru directory", path)
	}
}

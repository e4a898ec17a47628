package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/AvengeMedia/dankbooru/internal/compiler"
	"github.com/AvengeMedia/dankbooru/internal/server/models"
	"github.com/AvengeMedia/dankbooru/internal/service"
)

const socketPrefix = "dankbooru-"

func getSocketDir() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return runtime
	}

	if os.Getuid() == 0 {
		if _, err := os.Stat("/run"); err == nil {
			return "/run/dankbooru"
		}
		return "/var/run/dankbooru"
	}

	return os.TempDir()
}

func findRunningSocket() (string, error) {
	dir := getSocketDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("service not running")
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), socketPrefix) || !strings.HasSuffix(entry.Name(), ".sock") {
			continue
		}

		socketPath := filepath.Join(dir, entry.Name())
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			return socketPath, nil
		}
	}

	return "", fmt.Errorf("service not running")
}

func sendRequest(method string, params map[string]any) (json.RawMessage, error) {
	socketPath, err := findRunningSocket()
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("service not running")
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	// server info line
	if !scanner.Scan() {
		return nil, fmt.Errorf("no response from server")
	}

	data, err := json.Marshal(models.Request{ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, err
	}

	if !scanner.Scan() {
		return nil, fmt.Errorf("no response from server")
	}

	var resp models.Response[json.RawMessage]
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("empty response from server")
	}

	return *resp.Result, nil
}

func call[T any](method string, params map[string]any) (*T, error) {
	result, err := sendRequest(method, params)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func status(method string) (string, error) {
	resp, err := call[map[string]string](method, nil)
	if err != nil {
		return "", err
	}
	return (*resp)["status"], nil
}

// Running reports whether a server socket accepts connections.
func Running() bool {
	_, err := findRunningSocket()
	return err == nil
}

func Ping() error {
	_, err := sendRequest("ping", nil)
	return err
}

func Search(query string, limit, offset int) (*service.SearchResult, error) {
	return call[service.SearchResult]("search", map[string]any{
		"query":  query,
		"limit":  limit,
		"offset": offset,
	})
}

func Explain(query string) (*compiler.Explanation, error) {
	return call[compiler.Explanation]("explain", map[string]any{"query": query})
}

func Normalize(query string, aliases, sorted bool) (string, error) {
	resp, err := call[map[string]string]("normalize", map[string]any{
		"query":   query,
		"aliases": aliases,
		"sort":    sorted,
	})
	if err != nil {
		return "", err
	}
	return (*resp)["query"], nil
}

func Stats() (*service.Stats, error) {
	return call[service.Stats]("stats", nil)
}

func Sync() (string, error) {
	return status("sync")
}

func WatchStatus() (string, error) {
	return status("watch.status")
}

func WatchStart() (string, error) {
	return status("watch.start")
}

func WatchStop() (string, error) {
	return status("watch.stop")
}

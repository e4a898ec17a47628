package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/AvengeMedia/dankbooru/internal/server/models"
)

const APIVersion = 2

const (
	socketPrefix = "dankbooru-"
	socketSuffix = ".sock"

	maxRequestBytes = 1024 * 1024
)

// ServerInfo is the first line written on every connection.
type ServerInfo struct {
	APIVersion int      `json:"apiVersion"`
	Methods    []string `json:"methods"`
}

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

func GetSocketPath() string {
	return filepath.Join(getSocketDir(), fmt.Sprintf("%s%d%s", socketPrefix, os.Getpid(), socketSuffix))
}

// socketPID extracts the owning pid from a socket file name.
func socketPID(name string) (int, bool) {
	if !strings.HasPrefix(name, socketPrefix) || !strings.HasSuffix(name, socketSuffix) {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, socketPrefix), socketSuffix))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// cleanupStaleSockets removes sockets left behind by servers that are gone.
func cleanupStaleSockets(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		pid, ok := socketPID(entry.Name())
		if !ok || processAlive(pid) {
			continue
		}
		socketPath := filepath.Join(dir, entry.Name())
		if err := os.Remove(socketPath); err == nil {
			log.Debugf("removed stale socket: %s", socketPath)
		}
	}
}

// UnixServer serves the line protocol: after the info line, each line read
// is one models.Request and is answered by one response line, until the
// client closes the connection.
type UnixServer struct {
	router *Router
	path   string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

func NewUnix(router *Router) *UnixServer {
	return &UnixServer{
		router: router,
		path:   GetSocketPath(),
		conns:  make(map[net.Conn]struct{}),
	}
}

func (s *UnixServer) Path() string {
	return s.path
}

func (s *UnixServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *UnixServer) handleConnection(conn net.Conn) {
	s.track(conn, true)
	defer func() {
		s.track(conn, false)
		conn.Close()
	}()

	info, _ := json.Marshal(ServerInfo{
		APIVersion: APIVersion,
		Methods:    s.router.Methods(),
	})
	if _, err := conn.Write(append(info, '\n')); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	for scanner.Scan() {
		var req models.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			models.RespondError(conn, 0, "invalid json")
			continue
		}
		s.router.RouteRequest(conn, req)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debugf("socket read failed: %v", err)
	}
}

func (s *UnixServer) Start() error {
	cleanupStaleSockets(filepath.Dir(s.path))

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if err := os.Chmod(s.path, 0600); err != nil {
		log.Warnf("failed to restrict socket permissions: %v", err)
	}

	log.Infof("control socket listening on %s", s.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConnection(conn)
	}
}

// Close stops accepting, drops open connections and removes the socket file.
func (s *UnixServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.Close()
	}

	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	os.Remove(s.path)
	return err
}

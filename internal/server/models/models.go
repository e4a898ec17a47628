package models

import (
	"encoding/json"
	"net"

	"github.com/AvengeMedia/dankbooru/internal/log"
)

// Request is one line of the socket protocol.
type Request struct {
	ID     int            `json:"id,omitempty"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type Response[T any] struct {
	ID     int    `json:"id,omitempty"`
	Result *T     `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func write(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to encode response: %v", err)
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}

func Respond[T any](conn net.Conn, id int, result T) {
	write(conn, Response[T]{ID: id, Result: &result})
}

func RespondError(conn net.Conn, id int, msg string) {
	write(conn, Response[any]{ID: id, Error: msg})
}

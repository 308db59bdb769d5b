package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus   CommandType = "GET_STATUS"
	CommandListWindows CommandType = "LIST_WINDOWS"
	CommandReload      CommandType = "RELOAD"
	CommandRepaint     CommandType = "REPAINT"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ScreenWidth    int    `json:"screen_width"`
	ScreenHeight   int    `json:"screen_height"`
	TrackedWindows int    `json:"tracked_windows"`
	MappedWindows  int    `json:"mapped_windows"`
	ActiveFades    int    `json:"active_fades"`
	PendingRects   int    `json:"pending_damage_rects"`
	FramesPainted  uint64 `json:"frames_painted"`
	EventsHandled  uint64 `json:"events_handled"`
	IgnoredErrors  uint64 `json:"ignored_errors"`
	ProtocolErrors uint64 `json:"protocol_errors"`
	ConfigPath     string `json:"config_path,omitempty"`
}

// WindowData describes one tracked window in LIST_WINDOWS.
type WindowData struct {
	ID        uint32  `json:"id"`
	Client    uint32  `json:"client,omitempty"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Border    int     `json:"border"`
	Mode      string  `json:"mode"`
	Opacity   float64 `json:"opacity"`
	Type      string  `json:"type"`
	State     string  `json:"state"`
	Shadow    bool    `json:"shadow"`
	DamageSeq uint64  `json:"damage_seq"`
}

// WindowsData represents the data returned by LIST_WINDOWS, top first.
type WindowsData struct {
	Windows []WindowData `json:"windows"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

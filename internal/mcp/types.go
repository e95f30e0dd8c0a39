// File: internal/mcp/types.go
package mcp

// CommandRequest is the incoming JSON envelope from the model-side client.
type CommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// CommandResponse is the outgoing JSON envelope.
type CommandResponse struct {
	Status string `json:"status"` // "success", "error", "accepted"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BrowseParams drives the synchronous "browse" command.
type BrowseParams struct {
	Task string `json:"task"`
	// URL is the starting page; the configured search page when empty.
	URL string `json:"url,omitempty"`
}

// StartJobParams drives the asynchronous "start_job" command.
type StartJobParams struct {
	Task string `json:"task"`
	URL  string `json:"url,omitempty"`
}

// JobIDParams identifies one job for status and cancel commands. Compact
// defaults to true; a full status read carries the whole progress history.
type JobIDParams struct {
	JobID   string `json:"job_id"`
	Compact *bool  `json:"compact,omitempty"`
}

// ListArtifactsParams optionally narrows the listing to one session.
type ListArtifactsParams struct {
	SessionID string `json:"session_id,omitempty"`
}

// WaitParams pauses the caller server-side between polls.
type WaitParams struct {
	Seconds int `json:"seconds"`
}

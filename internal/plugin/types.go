// Package plugin discovers and runs out-of-process actuation helpers. A plugin
// is a directory holding a plugin.json manifest and an executable that reads
// one JSON request on stdin and answers with one JSON response on stdout.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and the actions it handles.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
	// Platforms restricts the plugin to the listed GOOS values. Empty means any.
	Platforms []string `json:"platforms,omitempty"`
}

// Supports reports whether the manifest lists action.
func (m Manifest) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RunsOn reports whether the plugin may run on goos.
func (m Manifest) RunsOn(goos string) bool {
	if len(m.Platforms) == 0 {
		return true
	}
	for _, p := range m.Platforms {
		if p == goos {
			return true
		}
	}
	return false
}

// Request is sent to a plugin for one action.
type Request struct {
	Action  string          `json:"action"`
	Gesture string          `json:"gesture,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the plugin's answer.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

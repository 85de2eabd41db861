// Package main is the system-control plugin. It adjusts display brightness
// with AppleScript key codes on macOS and brightnessctl on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request is the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Gesture string          `json:"gesture,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type params struct {
	Delta int `json:"delta"`
}

type actionHandler func(p params) error

var actionHandlers = map[string]actionHandler{
	"brightness-up":   func(p params) error { return adjust(abs(p.Delta, 10)) },
	"brightness-down": func(p params) error { return adjust(-abs(p.Delta, 10)) },
	"brightness-set":  func(p params) error { return adjust(p.Delta) },
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeResponse(Response{Error: fmt.Sprintf("unknown action: %s", req.Action)})
		return
	}

	var p params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeResponse(Response{Error: fmt.Sprintf("invalid params: %v", err)})
			return
		}
	}

	if err := handler(p); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)})
		return
	}
	writeResponse(Response{Success: true})
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

func abs(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < 0 {
		return -v
	}
	return v
}

// adjust changes brightness by delta percent.
func adjust(delta int) error {
	if delta == 0 {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		return stepDarwin(delta)
	case "linux":
		sign := "+"
		if delta < 0 {
			sign = "-"
			delta = -delta
		}
		// brightnessctl takes "10%+" or "10%-"
		return run("brightnessctl", "set", strconv.Itoa(delta)+"%"+sign)
	default:
		return fmt.Errorf("brightness control not supported on %s", runtime.GOOS)
	}
}

// stepDarwin presses the brightness keys once per 1/16 of the range.
func stepDarwin(delta int) error {
	code := 144
	if delta < 0 {
		code = 145
		delta = -delta
	}
	steps := delta * 16 / 100
	if steps < 1 {
		steps = 1
	}
	script := fmt.Sprintf(`tell application "System Events"
	repeat %d times
		key code %d
	end repeat
end tell`, steps, code)
	return run("osascript", "-e", script)
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

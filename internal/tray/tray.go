// Package tray provides a system tray menu for starting and stopping programs.
package tray

import (
	"context"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/session"
)

// Controller starts and stops programs on behalf of the menu.
type Controller interface {
	Start(ctx context.Context, name string, replace bool) (*session.Session, error)
	Terminate(name string) error
	Current() (session.Program, bool)
}

// Tray represents the system tray application.
type Tray struct {
	controller Controller
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuStatus   *systray.MenuItem
	menuPrograms map[session.Program]*systray.MenuItem
	menuStop     *systray.MenuItem
}

// New creates a new Tray driving c.
func New(c Controller) *Tray {
	return &Tray{controller: c}
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra gesture and eye control")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Idle", "Current program")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuPrograms = make(map[session.Program]*systray.MenuItem)
	for _, p := range session.Programs() {
		item := systray.AddMenuItem(p.Title(), "Start "+p.Title())
		t.menuPrograms[p] = item
		go func(p session.Program, clicked chan struct{}) {
			for range clicked {
				t.handleProgram(p)
			}
		}(p, item.ClickedCh)
	}
	t.menuStop = systray.AddMenuItem("Stop", "Stop the running program")
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	t.refresh()

	go func() {
		for {
			select {
			case <-t.menuStop.ClickedCh:
				t.handleStop()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit stops whatever is still running.
func (t *Tray) onExit() {
	t.handleStop()
}

// handleProgram starts p, replacing any running program. Clicking the
// running program stops it.
func (t *Tray) handleProgram(p session.Program) {
	if current, ok := t.controller.Current(); ok && current == p {
		t.handleStop()
		return
	}
	if _, err := t.controller.Start(context.Background(), string(p), true); err != nil {
		log.Printf("tray: start %s: %v", p, err)
	}
	t.refresh()
}

// handleStop terminates the current program, if any.
func (t *Tray) handleStop() {
	if current, ok := t.controller.Current(); ok {
		if err := t.controller.Terminate(string(current)); err != nil {
			log.Printf("tray: stop %s: %v", current, err)
		}
	}
	t.refresh()
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Status returns the status line shown at the top of the menu.
func (t *Tray) Status() string {
	if p, ok := t.controller.Current(); ok {
		return "Running: " + p.Title()
	}
	return "Idle"
}

// refresh updates the status line and the check marks.
func (t *Tray) refresh() {
	current, _ := t.controller.Current()

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(t.Status())
	}
	for p, item := range t.menuPrograms {
		if p == current {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	if t.menuStop != nil {
		if current == "" {
			t.menuStop.Disable()
		} else {
			t.menuStop.Enable()
		}
	}
}

// Quit closes the menu and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

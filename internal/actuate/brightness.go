package actuate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/plugin"
)

// PluginBrightness changes brightness by running the plugin that handles
// the brightness-up / brightness-down actions.
type PluginBrightness struct {
	manager  *plugin.Manager
	executor *plugin.Executor
}

// NewPluginBrightness creates a Brightness backed by discovered plugins.
func NewPluginBrightness(manager *plugin.Manager, executor *plugin.Executor) *PluginBrightness {
	return &PluginBrightness{manager: manager, executor: executor}
}

// SetBrightness runs brightness-up for positive deltas and brightness-down
// for negative ones. A zero delta is a no-op.
func (b *PluginBrightness) SetBrightness(delta int) error {
	if delta == 0 {
		return nil
	}
	action := "brightness-up"
	if delta < 0 {
		action = "brightness-down"
	}

	p, err := b.manager.ForAction(action)
	if errors.Is(err, plugin.ErrPluginNotFound) {
		return fmt.Errorf("%s: %w", action, ErrUnsupported)
	}
	if err != nil {
		return err
	}

	params, err := json.Marshal(map[string]int{"delta": delta})
	if err != nil {
		return err
	}

	resp, err := b.executor.Execute(context.Background(), p, &plugin.Request{Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", action, resp.Error)
	}
	return nil
}

// Package collection holds the live script catalog and the execution
// front door: enable/disable state, external registrations, argument
// presets, and the single-flight run gate over the executor.
package collection

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"bindkit/internal/events"
	"bindkit/internal/loader"
	"bindkit/internal/script"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// Catalog is the authoritative view of discovered scripts plus the user
// state layered over them. Reload swaps the whole view atomically.
type Catalog struct {
	loader *loader.Loader
	store  *settings.Store
	bus    *events.Bus
	logger logging.Logger

	mu       sync.RWMutex
	result   *loader.Result
	disabled map[string]bool
}

// NewCatalog creates an empty catalog; call Reload to populate it.
func NewCatalog(ld *loader.Loader, store *settings.Store, bus *events.Bus, logger logging.Logger) *Catalog {
	return &Catalog{
		loader:   ld,
		store:    store,
		bus:      bus,
		logger:   logging.OrNop(logger),
		result:   &loader.Result{},
		disabled: make(map[string]bool),
	}
}

// Reload runs a full discovery pass and swaps in the fresh view.
func (c *Catalog) Reload(ctx context.Context) error {
	result, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload script catalog: %w", err)
	}

	disabled := make(map[string]bool)
	if c.store != nil {
		for _, id := range c.store.GetStringSlice(settings.KeyDisabledScripts) {
			disabled[id] = true
		}
	}

	c.mu.Lock()
	c.result = result
	c.disabled = disabled
	c.mu.Unlock()

	c.publish(events.KindMenuRebuild, "", "catalog reloaded")
	return nil
}

// Scripts returns the enabled scripts in display order.
func (c *Catalog) Scripts() []script.Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]script.Info, 0, len(c.result.Scripts))
	for _, info := range c.result.Scripts {
		if !c.disabled[info.Identifier] {
			out = append(out, info)
		}
	}
	return out
}

// AllScripts returns every discovered script, disabled included.
func (c *Catalog) AllScripts() []script.Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]script.Info, len(c.result.Scripts))
	copy(out, c.result.Scripts)
	return out
}

// FailedScripts returns path-to-reason for files analysis rejected.
func (c *Catalog) FailedScripts() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.result.Failed))
	for k, v := range c.result.Failed {
		out[k] = v
	}
	return out
}

// Find resolves a script by canonical identifier or legacy alias. Disabled
// scripts are still found; callers gate on IsEnabled where it matters.
func (c *Catalog) Find(name string) (script.Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result.Lookup(name)
}

// IsEnabled reports whether a script is not on the disabled list.
func (c *Catalog) IsEnabled(identifier string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled[identifier]
}

// SetEnabled flips a script's disabled state and persists the list.
func (c *Catalog) SetEnabled(identifier string, enabled bool) error {
	c.mu.Lock()
	if enabled {
		delete(c.disabled, identifier)
	} else {
		c.disabled[identifier] = true
	}
	ids := make([]string, 0, len(c.disabled))
	for id := range c.disabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Set(settings.KeyDisabledScripts, ids); err != nil {
			return fmt.Errorf("persist disabled scripts: %w", err)
		}
	}
	c.publish(events.KindMenuRebuild, identifier, "script availability changed")
	return nil
}

// AddExternal registers a script living outside the managed directory.
// The file must exist and have a supported extension.
func (c *Catalog) AddExternal(ctx context.Context, displayName, path string) error {
	if c.store == nil {
		return fmt.Errorf("external scripts require a settings store")
	}
	if script.KindForPath(path) == script.KindUnknown {
		return fmt.Errorf("unsupported script type: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("external script not found: %s", path)
	}
	if existing := c.store.GetString(settings.ExternalScriptKey(displayName)); existing != "" {
		return fmt.Errorf("external script %q is already registered", displayName)
	}

	if err := c.store.Set(settings.ExternalScriptKey(displayName), path); err != nil {
		return fmt.Errorf("register external script: %w", err)
	}
	c.publish(events.KindScriptsChanged, displayName, "external script added")
	return c.Reload(ctx)
}

// RemoveExternal drops an external registration.
func (c *Catalog) RemoveExternal(ctx context.Context, displayName string) error {
	if c.store == nil {
		return fmt.Errorf("external scripts require a settings store")
	}
	if c.store.GetString(settings.ExternalScriptKey(displayName)) == "" {
		return fmt.Errorf("external script %q is not registered", displayName)
	}
	if err := c.store.Delete(settings.ExternalScriptKey(displayName)); err != nil {
		return fmt.Errorf("remove external script: %w", err)
	}
	c.publish(events.KindScriptsChanged, displayName, "external script removed")
	return c.Reload(ctx)
}

// ExternalAlive reports file presence per external registration.
func (c *Catalog) ExternalAlive() map[string]bool {
	return c.loader.RefreshExternal()
}

// SetCustomName stores a user-chosen display name keyed by the original
// one; empty custom clears it. Takes effect on the next reload.
func (c *Catalog) SetCustomName(original, custom string) error {
	if c.store == nil {
		return fmt.Errorf("custom names require a settings store")
	}
	if custom == "" {
		return c.store.Delete(settings.CustomNameKey(original))
	}
	return c.store.Set(settings.CustomNameKey(original), custom)
}

// PresetsFor returns the named argument presets stored for a script.
func (c *Catalog) PresetsFor(identifier string) map[string]map[string]string {
	if c.store == nil {
		return nil
	}
	raw := c.store.Group(settings.GroupPresets + "/" + identifier)
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]map[string]string, len(raw))
	for presetName, value := range raw {
		argsMap, err := cast.ToStringMapStringE(value)
		if err != nil {
			c.logger.Warn("collection: malformed preset %q for %s: %v", presetName, identifier, err)
			continue
		}
		out[presetName] = argsMap
	}
	return out
}

// SavePreset stores one named preset for a script.
func (c *Catalog) SavePreset(identifier, presetName string, args map[string]string) error {
	if c.store == nil {
		return fmt.Errorf("presets require a settings store")
	}
	return c.store.Set(settings.PresetKey(identifier, presetName), args)
}

// DeletePreset removes one named preset.
func (c *Catalog) DeletePreset(identifier, presetName string) error {
	if c.store == nil {
		return fmt.Errorf("presets require a settings store")
	}
	return c.store.Delete(settings.PresetKey(identifier, presetName))
}

// MergePreset overlays explicit args on top of a stored preset; explicit
// values win. Unknown preset names return the explicit args unchanged.
func (c *Catalog) MergePreset(identifier, presetName string, args map[string]string) map[string]string {
	presets := c.PresetsFor(identifier)
	base, ok := presets[presetName]
	if !ok {
		return args
	}

	merged := make(map[string]string, len(base)+len(args))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	return merged
}

func (c *Catalog) publish(kind events.Kind, name, message string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Kind: kind, Name: name, Message: message})
}

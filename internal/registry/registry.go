// Package registry tracks registered plugins and drives their
// lifecycle: dependency validation, ordered init and start, reverse
// shutdown, and lookup by name or role.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// Registry holds every registered plugin. Optional plugins that fail a
// check are disabled rather than aborting startup; required plugins
// abort. Disabling cascades to dependents.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	infos    map[string]plugin.PluginInfo
	disabled map[string]bool
	order    []string // set by Validate, dependency-first
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		plugins:  make(map[string]plugin.Plugin),
		infos:    make(map[string]plugin.PluginInfo),
		disabled: make(map[string]bool),
	}
}

// Register adds a plugin. All registrations must happen before
// Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, dup := r.plugins[info.Name]; dup {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}

	r.plugins[info.Name] = p
	r.infos[info.Name] = info
	r.logger.Info("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// Validate checks API version compatibility and the dependency graph,
// then fixes the start order. It must run after all Register calls and
// before InitAll.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		if err := checkAPIVersion(r.logger, name, info.APIVersion); err != nil {
			if info.Required {
				return err
			}
			r.logger.Warn("disabling plugin: incompatible plugin API",
				zap.String("name", name), zap.Error(err))
			r.disabled[name] = true
		}
	}

	if err := r.disableBrokenDeps(); err != nil {
		return err
	}

	order, err := r.sortByDependency()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("active", len(r.order)),
		zap.Int("disabled", len(r.disabled)),
	)
	return nil
}

// disableBrokenDeps disables plugins whose dependencies are missing or
// disabled, repeating until the set is stable so disables cascade.
// A required plugin in that position is a startup error.
func (r *Registry) disableBrokenDeps() error {
	for changed := true; changed; {
		changed = false
		for name, info := range r.infos {
			if r.disabled[name] {
				continue
			}
			for _, dep := range info.Dependencies {
				_, present := r.plugins[dep]
				if present && !r.disabled[dep] {
					continue
				}
				if info.Required {
					if !present {
						return fmt.Errorf("plugin %q depends on %q which is not registered", name, dep)
					}
					return fmt.Errorf("required plugin %q cannot start: dependency %q is disabled", name, dep)
				}
				r.logger.Warn("disabling plugin: unavailable dependency",
					zap.String("name", name),
					zap.String("dependency", dep),
				)
				r.disabled[name] = true
				changed = true
				break
			}
		}
	}
	return nil
}

// InitAll initializes active plugins in dependency order, validating
// config for Validator plugins and wiring declared bus subscriptions
// for EventSubscriber plugins.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		p := r.plugins[name]
		required := r.infos[name].Required

		r.logger.Info("initializing plugin", zap.String("name", name))
		deps := depsFn(name)
		if err := callPlugin(name, "init", func() error { return p.Init(ctx, deps) }); err != nil {
			if required {
				return fmt.Errorf("required plugin %q failed to initialize: %w", name, err)
			}
			r.logger.Error("optional plugin failed to initialize, disabling",
				zap.String("name", name), zap.Error(err))
			r.disabled[name] = true
			continue
		}

		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if required {
					return fmt.Errorf("required plugin %q config validation failed: %w", name, err)
				}
				r.logger.Error("optional plugin config validation failed, disabling",
					zap.String("name", name), zap.Error(err))
				r.disabled[name] = true
				continue
			}
		}

		if sub, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, s := range sub.Subscriptions() {
				deps.Bus.Subscribe(s.Topic, s.Handler)
			}
		}
	}
	return nil
}

// StartAll starts initialized plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		p := r.plugins[name]
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := callPlugin(name, "start", func() error { return p.Start(ctx) }); err != nil {
			if r.infos[name].Required {
				return fmt.Errorf("required plugin %q failed to start: %w", name, err)
			}
			r.logger.Error("optional plugin failed to start, disabling",
				zap.String("name", name), zap.Error(err))
			r.disabled[name] = true
		}
	}
	return nil
}

// StopAll stops active plugins in reverse start order so dependents go
// down before their dependencies.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.disabled[name] {
			continue
		}
		p := r.plugins[name]
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := callPlugin(name, "stop", func() error { return p.Stop(ctx) }); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok || r.disabled[name] {
		return nil, false
	}
	return p, true
}

// All returns the active plugins in start order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if !r.disabled[name] {
			out = append(out, r.plugins[name])
		}
	}
	return out
}

// AllRoutes collects the HTTP routes of every active HTTPProvider
// plugin, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		if hp, ok := r.plugins[name].(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}

// Resolve implements plugin.PluginResolver.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns the active plugins declaring the role, in start
// order.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []plugin.Plugin
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		for _, have := range r.infos[name].Roles {
			if have == role {
				out = append(out, r.plugins[name])
				break
			}
		}
	}
	return out
}

// IsDisabled reports whether the named plugin has been disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// callPlugin invokes one lifecycle method, converting a panic into an
// error so a single plugin cannot take down the host process.
func callPlugin(name, phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %q panicked during %s: %v", name, phase, r)
		}
	}()
	return fn()
}

func checkAPIVersion(logger *zap.Logger, name string, v int) error {
	switch {
	case v < plugin.APIVersionMin:
		return fmt.Errorf(
			"plugin %q targets Plugin API v%d, but this server requires v%d or newer (current: v%d). Upgrade the plugin or use an older server",
			name, v, plugin.APIVersionMin, plugin.APIVersionCurrent,
		)
	case v > plugin.APIVersionCurrent:
		return fmt.Errorf(
			"plugin %q targets Plugin API v%d, but this server only supports up to v%d. Upgrade the server to use this plugin",
			name, v, plugin.APIVersionCurrent,
		)
	case v < plugin.APIVersionCurrent:
		logger.Warn("plugin targets an older plugin API",
			zap.String("name", name),
			zap.Int("plugin_api", v),
			zap.Int("server_api", plugin.APIVersionCurrent),
		)
	}
	return nil
}

// sortByDependency orders active plugins with Kahn's algorithm. The
// ready set is kept sorted so the start order is deterministic across
// runs.
func (r *Registry) sortByDependency() ([]string, error) {
	active := make(map[string]bool, len(r.plugins))
	for name := range r.plugins {
		if !r.disabled[name] {
			active[name] = true
		}
	}

	waitingOn := make(map[string]int, len(active))
	dependents := make(map[string][]string)
	for name := range active {
		for _, dep := range r.infos[name].Dependencies {
			if active[dep] {
				waitingOn[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	var ready []string
	for name := range active {
		if waitingOn[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(active))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unblocked []string
		for _, d := range dependents[name] {
			waitingOn[d]--
			if waitingOn[d] == 0 {
				unblocked = append(unblocked, d)
			}
		}
		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	if len(order) != len(active) {
		var cycled []string
		for name := range active {
			if waitingOn[name] > 0 {
				cycled = append(cycled, name)
			}
		}
		sort.Strings(cycled)
		return nil, fmt.Errorf("dependency cycle detected among plugins: %v", cycled)
	}
	return order, nil
}

// Package plugin is the public SDK for DriftWatch modules. Built-in
// and third-party modules alike implement these interfaces and are
// driven through the same registry lifecycle.
package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Supported Plugin API versions. Plugins targeting a version outside
// this range are rejected during registry validation.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// Plugin is the lifecycle contract every DriftWatch module implements.
// The registry calls Init on all plugins in dependency order, then
// Start, and Stop in reverse order on shutdown.
type Plugin interface {
	Info() PluginInfo
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PluginInfo declares a plugin's identity and its place in the
// dependency graph.
type PluginInfo struct {
	Name         string   // unique identifier, e.g. "watch" or "probe"
	Version      string   // semantic version
	Description  string   // one-line summary
	Dependencies []string // plugin names that must initialize first
	Required     bool     // the server refuses to start without this plugin
	Roles        []string // capabilities offered, e.g. "monitoring", "ingest"
	APIVersion   int      // Plugin API version targeted
}

// Dependencies carries the shared services a plugin may use. The
// registry injects it during Init; the Config is already scoped to the
// plugin's own section.
type Dependencies struct {
	Config  Config
	Logger  *zap.Logger
	Store   Store
	Bus     EventBus
	Plugins PluginResolver
}

// Config is the read-only view of a plugin's configuration section.
// Backed by Viper.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Store is the shared SQLite database. Schema changes go through
// Migrate, which tracks applied versions per plugin.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, pluginName string, migrations []Migration) error
}

// Migration is one versioned schema change owned by a plugin. Versions
// must ascend within a plugin's migration list.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Route is one HTTP endpoint exposed by a plugin. The server mounts it
// under /api/v1/{plugin_name}/.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HTTPProvider marks plugins that expose HTTP routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthChecker marks plugins that report their own health.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// HealthStatus is a plugin health report. Status is one of "healthy",
// "degraded" or "unhealthy".
type HealthStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Event is a typed message on the bus. Payload's concrete type is
// determined by the topic.
type Event struct {
	Topic     string
	Source    string // name of the emitting plugin
	Timestamp time.Time
	Payload   any
}

// EventHandler consumes bus events.
type EventHandler func(ctx context.Context, event Event)

// Publisher is the emit-only slice of the bus, for code that never
// listens.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber is the listen-only slice of the bus.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus is the full publish/subscribe surface, adding fire-and-forget
// publishing and wildcard subscriptions to the narrow interfaces.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Subscription declares one topic a plugin wants delivered.
type Subscription struct {
	Topic   string
	Handler EventHandler
}

// EventSubscriber marks plugins whose subscriptions the registry wires
// up after Init.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// Validator marks plugins that can check their configuration after
// Init. A failed check disables an optional plugin and aborts startup
// for a required one.
type Validator interface {
	ValidateConfig() error
}

// PluginResolver lets a plugin locate peers by name or role.
type PluginResolver interface {
	Resolve(name string) (Plugin, bool)
	ResolveByRole(role string) []Plugin
}

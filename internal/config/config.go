// Package config adapts Viper to the plugin.Config contract and builds
// the process logger from the logging config tree.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig is the Viper-backed plugin.Config handed to plugins at
// Init. Each plugin receives a Sub of the full tree rooted at
// plugins.<name>, so plugin code never sees sibling configuration.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v; a nil Viper yields an empty config where every key
// reports its zero value.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Viper exposes the underlying instance for the composition root, which
// needs top-level keys (server.port, auth.*) the plugin contract does
// not cover.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }

func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the subtree rooted at key, or an empty config when the
// key is absent (viper.Sub returns nil in that case).
func (c *ViperConfig) Sub(key string) plugin.Config {
	return New(c.v.Sub(key))
}

// Package plugintest holds the behavioral contract every plugin.Plugin
// implementation must satisfy. Module test files call TestPluginContract
// with a factory for a fresh plugin instance.
package plugintest

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// TestPluginContract verifies the lifecycle and metadata contract:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return watch.New() })
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin) {
	t.Helper()

	newInited := func(t *testing.T) plugin.Plugin {
		t.Helper()
		p := factory()
		deps := plugin.Dependencies{Logger: zap.NewNop().Named(p.Info().Name)}
		if err := p.Init(context.Background(), deps); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		return p
	}

	t.Run("metadata", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("Info().Name is empty")
		}
		if info.Version == "" {
			t.Error("Info().Version is empty")
		}
		if info.APIVersion < plugin.APIVersionMin {
			t.Errorf("Info().APIVersion = %d, below minimum %d", info.APIVersion, plugin.APIVersionMin)
		}
	})

	t.Run("metadata is stable across calls", func(t *testing.T) {
		p := factory()
		first, second := p.Info(), p.Info()
		if first.Name != second.Name || first.Version != second.Version {
			t.Errorf("Info() changed between calls: %+v then %+v", first, second)
		}
	})

	t.Run("init with minimal deps", func(t *testing.T) {
		newInited(t)
	})

	t.Run("start then stop", func(t *testing.T) {
		p := newInited(t)
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("stop without start", func(t *testing.T) {
		p := newInited(t)
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() before Start error = %v", err)
		}
	})
}

package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// fakePlugin is the minimal lifecycle stub used across these tests.
// Behavior is configured through its fields.
type fakePlugin struct {
	info     plugin.PluginInfo
	initErr  error
	stopErr  error
	stopWait time.Duration
	stopLog  *[]string
	stops    *int32
}

func newFake(name string, deps ...string) *fakePlugin {
	return &fakePlugin{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "1.0.0",
			Description:  "test plugin " + name,
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (p *fakePlugin) Info() plugin.PluginInfo                             { return p.info }
func (p *fakePlugin) Init(_ context.Context, _ plugin.Dependencies) error { return p.initErr }
func (p *fakePlugin) Start(_ context.Context) error                       { return nil }

func (p *fakePlugin) Stop(ctx context.Context) error {
	if p.stops != nil {
		atomic.AddInt32(p.stops, 1)
	}
	if p.stopWait > 0 {
		select {
		case <-time.After(p.stopWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.stopLog != nil {
		*p.stopLog = append(*p.stopLog, p.info.Name)
	}
	return p.stopErr
}

type routesPlugin struct {
	fakePlugin
	routes []plugin.Route
}

func (p *routesPlugin) Routes() []plugin.Route { return p.routes }

type subscriberPlugin struct {
	fakePlugin
	subs []plugin.Subscription
}

func (p *subscriberPlugin) Subscriptions() []plugin.Subscription { return p.subs }

// panicPlugin panics in whichever lifecycle phase is named.
type panicPlugin struct {
	fakePlugin
	phase string
}

func (p *panicPlugin) Init(ctx context.Context, deps plugin.Dependencies) error {
	if p.phase == "init" {
		panic("test panic in Init")
	}
	return p.fakePlugin.Init(ctx, deps)
}

func (p *panicPlugin) Start(ctx context.Context) error {
	if p.phase == "start" {
		panic("test panic in Start")
	}
	return p.fakePlugin.Start(ctx)
}

func (p *panicPlugin) Stop(ctx context.Context) error {
	if p.phase == "stop" {
		panic("test panic in Stop")
	}
	return p.fakePlugin.Stop(ctx)
}

// recordingBus captures Subscribe calls.
type recordingBus struct {
	topics []string
}

func (b *recordingBus) Publish(context.Context, plugin.Event) error { return nil }
func (b *recordingBus) PublishAsync(context.Context, plugin.Event)  {}
func (b *recordingBus) Subscribe(topic string, _ plugin.EventHandler) (unsubscribe func()) {
	b.topics = append(b.topics, topic)
	return func() {}
}
func (b *recordingBus) SubscribeAll(plugin.EventHandler) (unsubscribe func()) { return func() {} }

func newRegistry() *Registry { return New(zap.NewNop()) }

func nopDeps(name string) plugin.Dependencies {
	return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
}

func TestRegister(t *testing.T) {
	reg := newRegistry()

	p := newFake("alpha")
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(p); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
	if err := reg.Register(&fakePlugin{}); err == nil {
		t.Fatal("expected error for empty plugin name")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Registry)
		wantErr bool
		// disabled/active checked after a nil-error Validate
		disabled []string
		active   int
	}{
		{
			name: "independent plugins",
			setup: func(r *Registry) {
				r.Register(newFake("a"))
				r.Register(newFake("b"))
			},
			active: 2,
		},
		{
			name: "dependency cycle",
			setup: func(r *Registry) {
				r.Register(newFake("a", "b"))
				r.Register(newFake("b", "a"))
			},
			wantErr: true,
		},
		{
			name: "required plugin with missing dep fails startup",
			setup: func(r *Registry) {
				p := newFake("a", "missing")
				p.info.Required = true
				r.Register(p)
			},
			wantErr: true,
		},
		{
			name: "optional plugin with missing dep is disabled",
			setup: func(r *Registry) {
				r.Register(newFake("a", "missing"))
			},
			disabled: []string{"a"},
			active:   0,
		},
		{
			name: "required plugin with too-old API fails startup",
			setup: func(r *Registry) {
				p := newFake("old")
				p.info.APIVersion = 0
				p.info.Required = true
				r.Register(p)
			},
			wantErr: true,
		},
		{
			name: "required plugin with too-new API fails startup",
			setup: func(r *Registry) {
				p := newFake("future")
				p.info.APIVersion = 999
				p.info.Required = true
				r.Register(p)
			},
			wantErr: true,
		},
		{
			name: "disable cascades to dependents",
			setup: func(r *Registry) {
				a := newFake("a")
				a.info.APIVersion = 0 // optional, disabled for old API
				r.Register(a)
				r.Register(newFake("b", "a"))
			},
			disabled: []string{"a", "b"},
			active:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry()
			tt.setup(reg)

			err := reg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			for _, name := range tt.disabled {
				if !reg.IsDisabled(name) {
					t.Errorf("expected %q to be disabled", name)
				}
			}
			if got := len(reg.All()); got != tt.active {
				t.Errorf("active plugins = %d, want %d", got, tt.active)
			}
		})
	}
}

func TestValidate_DependencyOrder(t *testing.T) {
	reg := newRegistry()
	reg.Register(newFake("b", "a"))
	reg.Register(newFake("a"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("active plugins = %d, want 2", len(all))
	}
	if all[0].Info().Name != "a" || all[1].Info().Name != "b" {
		t.Errorf("start order = [%s %s], want [a b]", all[0].Info().Name, all[1].Info().Name)
	}
}

func TestInitAll_RequiredFailureAborts(t *testing.T) {
	reg := newRegistry()
	p := newFake("a")
	p.info.Required = true
	p.initErr = errors.New("init failed")
	reg.Register(p)
	reg.Validate()

	if err := reg.InitAll(context.Background(), nopDeps); err == nil {
		t.Fatal("expected error for failing required plugin")
	}
}

func TestInitAll_OptionalFailureDisables(t *testing.T) {
	reg := newRegistry()
	p := newFake("a")
	p.initErr = errors.New("init failed")
	reg.Register(p)
	reg.Register(newFake("b"))
	reg.Validate()

	if err := reg.InitAll(context.Background(), nopDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if !reg.IsDisabled("a") {
		t.Error("expected failing optional plugin to be disabled")
	}
	if reg.IsDisabled("b") {
		t.Error("expected healthy plugin to stay active")
	}
}

func TestInitAll_WiresEventSubscriber(t *testing.T) {
	reg := newRegistry()
	p := &subscriberPlugin{
		fakePlugin: *newFake("notifier"),
		subs: []plugin.Subscription{
			{Topic: "watch.drift.detected", Handler: func(context.Context, plugin.Event) {}},
			{Topic: "watch.drift.cleared", Handler: func(context.Context, plugin.Event) {}},
		},
	}
	reg.Register(p)
	reg.Validate()

	bus := &recordingBus{}
	err := reg.InitAll(context.Background(), func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}
	})
	if err != nil {
		t.Fatalf("InitAll: %v", err)
	}

	want := []string{"watch.drift.detected", "watch.drift.cleared"}
	if len(bus.topics) != len(want) {
		t.Fatalf("subscribed topics = %v, want %v", bus.topics, want)
	}
	for i := range want {
		if bus.topics[i] != want[i] {
			t.Errorf("topic[%d] = %q, want %q", i, bus.topics[i], want[i])
		}
	}
}

func TestGetAndResolve(t *testing.T) {
	reg := newRegistry()
	reg.Register(newFake("a"))
	reg.Validate()

	if _, ok := reg.Get("a"); !ok {
		t.Error("Get(a) = false, want true")
	}
	if _, ok := reg.Get("nope"); ok {
		t.Error("Get(nope) = true, want false")
	}
	if _, ok := reg.Resolve("a"); !ok {
		t.Error("Resolve(a) = false, want true")
	}
}

func TestResolveByRole(t *testing.T) {
	reg := newRegistry()
	mon := newFake("watch")
	mon.info.Roles = []string{"monitoring"}
	reg.Register(mon)
	reg.Register(newFake("plain"))
	reg.Validate()

	got := reg.ResolveByRole("monitoring")
	if len(got) != 1 || got[0].Info().Name != "watch" {
		t.Errorf("ResolveByRole(monitoring) = %d plugins, want [watch]", len(got))
	}
	if len(reg.ResolveByRole("storage")) != 0 {
		t.Error("ResolveByRole(storage) should be empty")
	}
}

func TestAllRoutes(t *testing.T) {
	reg := newRegistry()
	reg.Register(&routesPlugin{
		fakePlugin: *newFake("web"),
		routes:     []plugin.Route{{Method: "GET", Path: "/test"}},
	})
	reg.Register(newFake("headless"))
	reg.Validate()
	reg.InitAll(context.Background(), nopDeps)

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("AllRoutes returned %d entries, want 1", len(routes))
	}
	if _, ok := routes["web"]; !ok {
		t.Error("AllRoutes missing 'web'")
	}
}

func upTo(t *testing.T, reg *Registry) {
	t.Helper()
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ctx := context.Background()
	if err := reg.InitAll(ctx, nopDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
}

func TestStopAll_ReverseDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		plugins []struct {
			name string
			deps []string
		}
		// first/last pin the positions that the dependency graph forces
		first, last string
	}{
		{
			name: "linear chain",
			plugins: []struct {
				name string
				deps []string
			}{{"a", nil}, {"b", []string{"a"}}, {"c", []string{"b"}}},
			first: "c", last: "a",
		},
		{
			name: "diamond",
			plugins: []struct {
				name string
				deps []string
			}{{"a", nil}, {"b", []string{"a"}}, {"c", []string{"a"}}, {"d", []string{"b", "c"}}},
			first: "d", last: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stopped []string
			reg := newRegistry()
			for _, p := range tt.plugins {
				f := newFake(p.name, p.deps...)
				f.stopLog = &stopped
				reg.Register(f)
			}
			upTo(t, reg)
			reg.StopAll(context.Background())

			if len(stopped) != len(tt.plugins) {
				t.Fatalf("stopped %d plugins, want %d", len(stopped), len(tt.plugins))
			}
			if stopped[0] != tt.first {
				t.Errorf("first stopped = %q, want %q", stopped[0], tt.first)
			}
			if stopped[len(stopped)-1] != tt.last {
				t.Errorf("last stopped = %q, want %q", stopped[len(stopped)-1], tt.last)
			}
		})
	}
}

func TestStopAll_ErrorsDoNotBlockOthers(t *testing.T) {
	var stopped []string
	reg := newRegistry()

	a := newFake("a")
	a.stopLog = &stopped
	b := newFake("b", "a")
	b.stopLog = &stopped
	b.stopErr = errors.New("b failed to stop")
	c := newFake("c", "b")
	c.stopLog = &stopped

	reg.Register(a)
	reg.Register(b)
	reg.Register(c)
	upTo(t, reg)
	reg.StopAll(context.Background())

	want := []string{"c", "b", "a"}
	if len(stopped) != len(want) {
		t.Fatalf("stopped = %v, want %v", stopped, want)
	}
	for i := range want {
		if stopped[i] != want[i] {
			t.Errorf("stopped[%d] = %q, want %q", i, stopped[i], want[i])
		}
	}
}

func TestStopAll_RespectsContextDeadline(t *testing.T) {
	var stopped []string
	reg := newRegistry()

	fast := newFake("fast")
	fast.stopLog = &stopped
	slow := newFake("slow")
	slow.stopLog = &stopped
	slow.stopWait = 5 * time.Second

	reg.Register(fast)
	reg.Register(slow)
	upTo(t, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	reg.StopAll(ctx)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("StopAll took %v, want well under the slow plugin's 5s", elapsed)
	}

	found := false
	for _, name := range stopped {
		if name == "fast" {
			found = true
		}
	}
	if !found {
		t.Error("fast plugin did not complete Stop")
	}
}

func TestStopAll_SkipsDisabled(t *testing.T) {
	var stops int32
	reg := newRegistry()

	active := newFake("active")
	active.stops = &stops
	dead := newFake("dead")
	dead.stops = &stops
	dead.info.APIVersion = 0 // disabled at Validate

	reg.Register(active)
	reg.Register(dead)
	upTo(t, reg)
	reg.StopAll(context.Background())

	if stops != 1 {
		t.Errorf("Stop calls = %d, want 1", stops)
	}
}

func TestStopAll_ConcurrentCallsSafe(t *testing.T) {
	var stops int32
	reg := newRegistry()

	p := newFake("concurrent")
	p.stops = &stops
	p.stopWait = 50 * time.Millisecond
	reg.Register(p)
	upTo(t, reg)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.StopAll(context.Background())
		}()
	}
	wg.Wait()

	if stops != 3 {
		t.Errorf("Stop calls = %d, want 3", stops)
	}
}

func TestPanicRecovery(t *testing.T) {
	t.Run("optional init panic disables", func(t *testing.T) {
		reg := newRegistry()
		reg.Register(&panicPlugin{fakePlugin: *newFake("panicker"), phase: "init"})
		reg.Register(newFake("normal"))
		reg.Validate()

		if err := reg.InitAll(context.Background(), nopDeps); err != nil {
			t.Fatalf("InitAll: %v", err)
		}
		if !reg.IsDisabled("panicker") {
			t.Error("expected panicking optional plugin to be disabled")
		}
		if reg.IsDisabled("normal") {
			t.Error("expected normal plugin to remain active")
		}
	})

	t.Run("required init panic aborts", func(t *testing.T) {
		reg := newRegistry()
		p := &panicPlugin{fakePlugin: *newFake("panicker"), phase: "init"}
		p.info.Required = true
		reg.Register(p)
		reg.Validate()

		err := reg.InitAll(context.Background(), nopDeps)
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("InitAll error = %v, want a panicked error", err)
		}
	})

	t.Run("optional start panic disables", func(t *testing.T) {
		reg := newRegistry()
		reg.Register(&panicPlugin{fakePlugin: *newFake("panicker"), phase: "start"})
		reg.Register(newFake("normal"))
		reg.Validate()
		reg.InitAll(context.Background(), nopDeps)

		if err := reg.StartAll(context.Background()); err != nil {
			t.Fatalf("StartAll: %v", err)
		}
		if !reg.IsDisabled("panicker") {
			t.Error("expected panicking optional plugin to be disabled")
		}
	})

	t.Run("required start panic aborts", func(t *testing.T) {
		reg := newRegistry()
		p := &panicPlugin{fakePlugin: *newFake("panicker"), phase: "start"}
		p.info.Required = true
		reg.Register(p)
		reg.Validate()
		reg.InitAll(context.Background(), nopDeps)

		err := reg.StartAll(context.Background())
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("StartAll error = %v, want a panicked error", err)
		}
	})

	t.Run("stop panic does not block others", func(t *testing.T) {
		var stopped []string
		reg := newRegistry()
		reg.Register(&panicPlugin{fakePlugin: *newFake("panicker"), phase: "stop"})
		normal := newFake("normal")
		normal.stopLog = &stopped
		reg.Register(normal)
		upTo(t, reg)

		reg.StopAll(context.Background()) // must not panic

		found := false
		for _, name := range stopped {
			if name == "normal" {
				found = true
			}
		}
		if !found {
			t.Error("normal plugin Stop not called after another plugin panicked")
		}
	})
}

package shader

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu/gputest"
)

const testVertex = `@vertex
fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
#if WIDE
    return vec4<f32>(2.0, 0.0, 0.0, 1.0);
#else
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
#endif
}
`

func newTestCache(t *testing.T, options ...ShaderModuleCacheBuilderOption) (ShaderModuleCache, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	c := NewShaderModuleCache(dev, append([]ShaderModuleCacheBuilderOption{WithValidator(nil)}, options...)...)
	t.Cleanup(c.Teardown)
	return c, dev
}

func TestModuleCompiledOnce(t *testing.T) {
	c, dev := newTestCache(t)
	c.Register("basic", testVertex)

	a, err := c.Module("basic", Context{})
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	b, err := c.Module("basic", Context{Flags: map[string]bool{"WIDE": false}})
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	if a != b {
		t.Fatalf("false flag produced a second module")
	}
	if n := dev.Created(gputest.KindShaderModule); n != 1 {
		t.Fatalf("compiled %d modules, want 1", n)
	}

	wide, err := c.Module("basic", Context{}.With("WIDE"))
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	if wide == a || wide.Key == a.Key {
		t.Fatalf("different context shared a module")
	}
	if !strings.Contains(wide.Code, "2.0") || strings.Contains(a.Code, "2.0") {
		t.Fatalf("context not applied: %q / %q", wide.Code, a.Code)
	}
	if n := dev.Created(gputest.KindShaderModule); n != 2 {
		t.Fatalf("compiled %d modules, want 2", n)
	}
}

func TestModuleConcurrent(t *testing.T) {
	c, dev := newTestCache(t)
	c.Register("basic", testVertex)

	const n = 32
	var wg sync.WaitGroup
	mods := make([]*Module, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			m, err := c.Module("basic", Context{})
			if err != nil {
				t.Errorf("Module: %v", err)
				return
			}
			mods[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if mods[i] != mods[0] {
			t.Fatalf("caller %d got a different module", i)
		}
	}
	if have := dev.Created(gputest.KindShaderModule); have != 1 {
		t.Fatalf("compiled %d modules, want 1", have)
	}
}

func TestModuleUnknownSource(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Module("nope", Context{}); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("have %v, want ErrUnknownSource", err)
	}
}

func TestModuleValidationFailureRetries(t *testing.T) {
	fail := true
	errInvalid := errors.New("invalid")
	c, dev := newTestCache(t, WithValidator(func(name, code string) error {
		if fail {
			return errInvalid
		}
		return nil
	}))
	c.Register("basic", testVertex)

	if _, err := c.Module("basic", Context{}); !errors.Is(err, errInvalid) {
		t.Fatalf("have %v, want validation error", err)
	}
	if dev.Created(gputest.KindShaderModule) != 0 {
		t.Fatalf("invalid source reached the compiler")
	}
	fail = false
	if _, err := c.Module("basic", Context{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestModulePreProcessorError(t *testing.T) {
	c, _ := newTestCache(t)
	c.Register("broken", "#if A\nfn f() {}")
	if _, err := c.Module("broken", Context{}); !errors.Is(err, ErrDirective) {
		t.Fatalf("have %v, want ErrDirective", err)
	}
}

func TestZeroValueIsNotAnUnboundValue(t *testing.T) {
	c, dev := newTestCache(t)
	c.Register("bound", "@group(${START}) @binding(0) var<uniform> u: vec4<f32>;")

	if _, err := c.Module("bound", Context{}.WithValue("START", 0)); err != nil {
		t.Fatalf("Module with START=0: %v", err)
	}
	for _, ctx := range []Context{{}, {Values: map[string]int{}}} {
		if m, err := c.Module("bound", ctx); !errors.Is(err, ErrUndefinedValue) {
			t.Fatalf("unbound START: have %v, %v, want ErrUndefinedValue", m, err)
		}
	}
	if n := dev.Created(gputest.KindShaderModule); n != 1 {
		t.Fatalf("compiled %d modules, want 1", n)
	}
}

func TestUpdateSourceEvictsAndReportsPipelines(t *testing.T) {
	c, dev := newTestCache(t)
	c.Register("basic", testVertex)

	plain, _ := c.Module("basic", Context{})
	wide, _ := c.Module("basic", Context{}.With("WIDE"))
	p1 := descriptor_key.Key("|pipeline{a}")
	p2 := descriptor_key.Key("|pipeline{b}")
	c.Reference(plain.Key, p1)
	c.Reference(plain.Key, p1)
	c.Reference(wide.Key, p2)
	c.Reference(wide.Key, p1)

	if have := c.Pipelines(plain.Key); len(have) != 1 || have[0] != p1 {
		t.Fatalf("Pipelines = %v, want [%s]", have, p1)
	}

	if have := c.UpdateSource("basic", testVertex); have != nil {
		t.Fatalf("identical text reported %v", have)
	}

	affected := c.UpdateSource("basic", strings.Replace(testVertex, "0.0, 0.0, 0.0", "0.5, 0.0, 0.0", 1))
	if len(affected) != 2 || affected[0] != p1 || affected[1] != p2 {
		t.Fatalf("affected = %v, want [%s %s]", affected, p1, p2)
	}
	if dev.Freed() != 2 {
		t.Fatalf("freed %d modules, want 2", dev.Freed())
	}
	if len(c.Pipelines(plain.Key)) != 0 {
		t.Fatalf("references survived the update")
	}

	// stale releases are ignored
	c.Release(plain.Key)

	again, err := c.Module("basic", Context{})
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	if again.Key == plain.Key || !strings.Contains(again.Code, "0.5") {
		t.Fatalf("module not rebuilt from the new text")
	}
}

func TestReleaseDropsModule(t *testing.T) {
	c, dev := newTestCache(t)
	c.Register("basic", testVertex)

	m, _ := c.Module("basic", Context{})
	_, _ = c.Module("basic", Context{})
	c.Release(m.Key)
	if dev.Freed() != 0 {
		t.Fatalf("module freed with an outstanding acquisition")
	}
	c.Release(m.Key)
	if dev.Freed() != 1 {
		t.Fatalf("module not freed at zero references")
	}
	if s := c.Stats(); s.Len != 0 || s.Creations != 1 || s.Hits != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestNagaValidator(t *testing.T) {
	code, err := NewPreProcessor().Process(testVertex, Context{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := NagaValidator("basic", code); err != nil {
		t.Fatalf("valid shader rejected: %v", err)
	}
	if err := NagaValidator("broken", "fn main( {"); err == nil {
		t.Fatalf("broken shader accepted")
	}
}

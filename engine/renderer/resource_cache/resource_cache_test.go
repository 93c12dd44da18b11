package resource_cache

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
)

type handle struct {
	id int
}

type samplerDesc struct {
	Filter  string
	Address string
	Label   string `key:"-"`
}

func newCounting(t *testing.T) (ResourceCache[*handle], *atomic.Int32, *[]int) {
	t.Helper()
	var created atomic.Int32
	released := &[]int{}
	var mu sync.Mutex
	c := NewResourceCache[*handle]("test",
		WithFactory(func(descriptor any) (*handle, error) {
			return &handle{id: int(created.Add(1))}, nil
		}),
		WithReleaser(func(h *handle) {
			mu.Lock()
			*released = append(*released, h.id)
			mu.Unlock()
		}),
	)
	return c, &created, released
}

func TestGetReturnsIdenticalHandle(t *testing.T) {
	c, created, _ := newCounting(t)

	a, err := c.Get(samplerDesc{Filter: "linear", Address: "repeat", Label: "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := c.Get(samplerDesc{Address: "repeat", Filter: "linear", Label: "b"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatalf("Get returned distinct handles %p and %p", a, b)
	}
	if n := created.Load(); n != 1 {
		t.Fatalf("factory calls:\nhave %d\nwant 1", n)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 || s.Creations != 1 || s.Len != 1 {
		t.Fatalf("Stats:\nhave %+v", s)
	}
}

func TestDistinctDescriptorsCreateDistinctHandles(t *testing.T) {
	c, created, _ := newCounting(t)

	a, _ := c.Get(samplerDesc{Filter: "linear"})
	b, _ := c.Get(samplerDesc{Filter: "nearest"})
	if a == b {
		t.Fatal("distinct descriptors shared a handle")
	}
	if n := created.Load(); n != 2 {
		t.Fatalf("factory calls:\nhave %d\nwant 2", n)
	}
}

func TestConcurrentSameKeyCreatesOnce(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	c := NewResourceCache[*handle]("concurrent")
	key := descriptor_key.MustCanonicalize(samplerDesc{Filter: "linear"})

	const callers = 64
	results := make([]*handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.GetOrCreate(key, func() (*handle, error) {
				calls.Add(1)
				<-gate
				return &handle{id: 7}, nil
			})
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = h
		}(i)
	}
	close(gate)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("factory calls:\nhave %d\nwant 1", n)
	}
	for i, h := range results {
		if h != results[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if rc := c.RefCount(key); rc != callers {
		t.Fatalf("RefCount:\nhave %d\nwant %d", rc, callers)
	}
}

func TestWaitersShareFailure(t *testing.T) {
	c := NewResourceCache[*handle]("failing")
	key := descriptor_key.Key("k")
	boom := errors.New("boom")
	started := make(chan struct{})
	gate := make(chan struct{})

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = c.GetOrCreate(key, func() (*handle, error) {
			close(started)
			<-gate
			return nil, boom
		})
	}()
	<-started

	waitErr := make(chan error)
	go func() {
		_, err := c.GetOrCreate(key, func() (*handle, error) {
			t.Error("second factory ran while the first was in flight")
			return &handle{}, nil
		})
		waitErr <- err
	}()

	// let the waiter block on the in-flight marker before failing the creation
	for c.Stats().Waits == 0 {
		runtime.Gosched()
	}
	close(gate)
	<-done

	if !errors.Is(firstErr, boom) {
		t.Fatalf("creator error:\nhave %v\nwant %v", firstErr, boom)
	}
	if err := <-waitErr; !errors.Is(err, boom) {
		t.Fatalf("waiter error:\nhave %v\nwant %v", err, boom)
	}
	if c.Len() != 0 {
		t.Fatal("failed creation left an entry behind")
	}

	h, err := c.GetOrCreate(key, func() (*handle, error) { return &handle{id: 2}, nil })
	if err != nil || h.id != 2 {
		t.Fatalf("retry after failure:\nhave %v, %v", h, err)
	}
}

func TestNilResourceIsAnError(t *testing.T) {
	c := NewResourceCache[*handle]("nil")
	_, err := c.GetOrCreate("k", func() (*handle, error) { return nil, nil })
	if !errors.Is(err, ErrNilResource) {
		t.Fatalf("GetOrCreate:\nhave %v\nwant %v", err, ErrNilResource)
	}
}

func TestGetWithoutFactory(t *testing.T) {
	c := NewResourceCache[*handle]("bare")
	if _, err := c.Get(samplerDesc{}); !errors.Is(err, ErrNoFactory) {
		t.Fatalf("Get:\nhave %v\nwant %v", err, ErrNoFactory)
	}
}

func TestGetRejectsNonSerializable(t *testing.T) {
	c, created, _ := newCounting(t)
	_, err := c.Get(map[string]any{"handle": func() {}})
	if !errors.Is(err, descriptor_key.ErrNonSerializable) {
		t.Fatalf("Get:\nhave %v\nwant %v", err, descriptor_key.ErrNonSerializable)
	}
	if created.Load() != 0 {
		t.Fatal("factory ran for a non-serializable descriptor")
	}
}

func TestReleaseDropsAtZero(t *testing.T) {
	c, _, released := newCounting(t)

	_, key, _ := c.Acquire(samplerDesc{Filter: "linear"})
	_, _, _ = c.Acquire(samplerDesc{Filter: "linear"})

	if c.Release(key) {
		t.Fatal("Release removed an entry that still had a reference")
	}
	if _, ok := c.Lookup(key); !ok {
		t.Fatal("entry vanished before its last release")
	}
	if !c.Release(key) {
		t.Fatal("last Release did not remove the entry")
	}
	if len(*released) != 1 {
		t.Fatalf("releaser calls:\nhave %d\nwant 1", len(*released))
	}
	if c.Release(key) {
		t.Fatal("Release of a missing key reported removal")
	}
}

func TestEvictIgnoresRefCount(t *testing.T) {
	c, created, released := newCounting(t)
	_, key, _ := c.Acquire(samplerDesc{Filter: "linear"})
	_, _, _ = c.Acquire(samplerDesc{Filter: "linear"})

	if !c.Evict(key) {
		t.Fatal("Evict did not remove the entry")
	}
	if len(*released) != 1 {
		t.Fatal("Evict did not release the object")
	}
	if _, _, err := c.Acquire(samplerDesc{Filter: "linear"}); err != nil {
		t.Fatalf("Acquire after Evict: %v", err)
	}
	if created.Load() != 2 {
		t.Fatalf("factory calls after Evict:\nhave %d\nwant 2", created.Load())
	}
}

func TestKeysAndTeardownOrder(t *testing.T) {
	c, _, released := newCounting(t)
	var keys []descriptor_key.Key
	for _, f := range []string{"a", "b", "c"} {
		_, k, err := c.Acquire(samplerDesc{Filter: f})
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k)
	}

	got := c.Keys()
	for i := range keys {
		if got[i] != keys[i] {
			t.Fatalf("Keys:\nhave %v\nwant %v", got, keys)
		}
	}

	c.Teardown()
	want := []int{3, 2, 1}
	for i := range want {
		if (*released)[i] != want[i] {
			t.Fatalf("teardown release order:\nhave %v\nwant %v", *released, want)
		}
	}
	if _, err := c.Get(samplerDesc{Filter: "a"}); !errors.Is(err, ErrTornDown) {
		t.Fatalf("Get after Teardown:\nhave %v\nwant %v", err, ErrTornDown)
	}
	c.Teardown()
	if len(*released) != 3 {
		t.Fatal("second Teardown released again")
	}
}

func TestTeardownDuringCreationReleasesOrphan(t *testing.T) {
	var released []int
	c := NewResourceCache[*handle]("orphan", WithReleaser(func(h *handle) {
		released = append(released, h.id)
	}))
	started := make(chan struct{})
	gate := make(chan struct{})
	errc := make(chan error)
	go func() {
		_, err := c.GetOrCreate("k", func() (*handle, error) {
			close(started)
			<-gate
			return &handle{id: 9}, nil
		})
		errc <- err
	}()
	<-started
	c.Teardown()
	close(gate)

	if err := <-errc; !errors.Is(err, ErrTornDown) {
		t.Fatalf("creation across Teardown:\nhave %v\nwant %v", err, ErrTornDown)
	}
	if len(released) != 1 || released[0] != 9 {
		t.Fatalf("orphan release:\nhave %v\nwant [9]", released)
	}
}

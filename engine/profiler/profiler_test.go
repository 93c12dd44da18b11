package profiler

import (
	"io"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/charmbracelet/log"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickReportsAtInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(
		WithInterval(time.Second),
		WithClock(clock.now),
		WithLogger(log.New(io.Discard)),
	)
	stats := frame.Stats{Pipelines: 1, BindGroups: 2, Draws: 3, Instances: 30}

	for range 9 {
		clock.t = clock.t.Add(100 * time.Millisecond)
		if p.Tick(stats) {
			t.Fatal("reported before the interval elapsed")
		}
	}
	clock.t = clock.t.Add(100 * time.Millisecond)
	if !p.Tick(stats) {
		t.Fatal("did not report after the interval")
	}

	r := p.Last()
	if r.Frames != 10 || r.FPS != 10 {
		t.Fatalf("frames %d fps %v, want 10 and 10", r.Frames, r.FPS)
	}
	if r.Draw != stats {
		t.Fatalf("average draw stats = %+v, want %+v", r.Draw, stats)
	}

	clock.t = clock.t.Add(100 * time.Millisecond)
	if p.Tick(frame.Stats{}) {
		t.Fatal("counters were not reset")
	}
}

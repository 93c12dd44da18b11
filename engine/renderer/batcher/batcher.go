// Package batcher groups the nodes of a scene by the primitive they draw and packs one
// instance block per node into a single instance buffer.
package batcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-instancer/common"
	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/node"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNotBuilt is returned by UpdateBuffers before the first Build.
var ErrNotBuilt = errors.New("batcher: no layout has been built")

// InstanceBuffer is the host copy of the instance blocks and the GPU buffer they are
// uploaded to. Buffer is nil when the layout has no instances.
type InstanceBuffer struct {
	Buffer *wgpu.Buffer
	Data   []byte
	Count  uint32
}

type geometryBatcher struct {
	mu        *sync.Mutex
	device    gpu.Device
	logger    *log.Logger
	workers   int
	threshold int
	queueSize int
	pool      worker.DynamicWorkerPool

	layout    *Layout
	instances []node.Node
	buffer    *InstanceBuffer
}

// GeometryBatcher builds instanced draw layouts from a scene graph.
type GeometryBatcher interface {
	// Build walks the tree depth-first, parent before children, skipping disabled
	// subtrees. Every primitive of every mesh is validated and appended to the group of
	// its key, groups are given contiguous ranges in first-seen order, and a fresh
	// instance buffer is allocated, packed and uploaded. The previous buffer is freed and
	// its ranges become invalid.
	//
	// Primitives that fail validation are recorded as faults and skipped; the build
	// carries on.
	//
	// Parameters:
	//   - root: the scene root
	//
	// Returns:
	//   - *InstanceBuffer: the new instance buffer
	//   - *Layout: the groups and faults
	//   - error: a key or GPU error; faults are reported through Layout.Err instead
	Build(root node.Node) (*InstanceBuffer, *Layout, error)

	// UpdateBuffers re-packs every instance from the current node transforms, in the same
	// order, and uploads the whole buffer. Ranges never move.
	//
	// Returns:
	//   - error: ErrNotBuilt or the upload error
	UpdateBuffers() error

	// Layout returns the current layout, or nil before the first Build.
	//
	// Returns:
	//   - *Layout: the layout
	Layout() *Layout

	// InstanceBuffer returns the current instance buffer, or nil before the first Build.
	//
	// Returns:
	//   - *InstanceBuffer: the buffer
	InstanceBuffer() *InstanceBuffer

	// Release frees the instance buffer and stops the worker pool.
	Release()
}

var _ GeometryBatcher = &geometryBatcher{}

// NewGeometryBatcher creates a batcher that allocates instance buffers on device.
//
// Parameters:
//   - device: the device instance buffers are created on
//   - options: functional options
//
// Returns:
//   - GeometryBatcher: the batcher
func NewGeometryBatcher(device gpu.Device, options ...GeometryBatcherBuilderOption) GeometryBatcher {
	if device == nil {
		panic("batcher: NewGeometryBatcher requires a device")
	}
	b := &geometryBatcher{
		mu:        &sync.Mutex{},
		device:    device,
		logger:    logger.For("batcher"),
		workers:   4,
		threshold: 4096,
		queueSize: 256,
	}
	for _, opt := range options {
		opt(b)
	}
	b.pool = worker.NewDynamicWorkerPool(b.workers, b.queueSize, 1*time.Second)
	return b
}

func (b *geometryBatcher) Build(root node.Node) (*InstanceBuffer, *Layout, error) {
	layout := &Layout{index: make(map[descriptor_key.Key]*Group)}
	var keyErr error

	root.Walk(func(n node.Node) bool {
		if keyErr != nil || !n.Enabled() {
			return false
		}
		m := n.Mesh()
		if m == nil {
			return true
		}
		for i, prim := range m.Primitives {
			if prim == nil {
				continue
			}
			pl, err := prim.Layout()
			if err != nil {
				f := Fault{Node: n, Mesh: m.Name, Primitive: i, Err: err, Fatal: mesh.Fatal(err)}
				layout.Faults = append(layout.Faults, f)
				if f.Fatal {
					b.logger.Error("primitive can never be drawn", "node", n.Name(), "mesh", m.Name, "primitive", i, "err", err)
				} else {
					b.logger.Warn("skipping unsupported primitive", "node", n.Name(), "mesh", m.Name, "primitive", i, "err", err)
				}
				continue
			}
			key, err := descriptor_key.Canonicalize(prim)
			if err != nil {
				keyErr = fmt.Errorf("batcher: node %q mesh %q primitive %d: %w", n.Name(), m.Name, i, err)
				return false
			}
			g, ok := layout.index[key]
			if !ok {
				g = &Group{Key: key, Primitive: prim, Layout: pl}
				layout.index[key] = g
				layout.Groups = append(layout.Groups, g)
			}
			g.Nodes = append(g.Nodes, n)
		}
		return true
	})
	if keyErr != nil {
		return nil, nil, keyErr
	}

	instances := make([]node.Node, 0)
	for _, g := range layout.Groups {
		g.Range = Range{First: layout.Total, Count: uint32(len(g.Nodes))}
		layout.Total += g.Range.Count
		instances = append(instances, g.Nodes...)
	}

	buf := &InstanceBuffer{Count: layout.Total, Data: make([]byte, int(layout.Total)*mesh.InstanceStride)}
	b.pack(buf.Data, instances)
	if layout.Total > 0 {
		gb, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Instance Buffer",
			Size:  uint64(len(buf.Data)),
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("batcher: instance buffer: %w", err)
		}
		if err := b.device.WriteBuffer(gb, 0, buf.Data); err != nil {
			b.device.Free(gb)
			return nil, nil, fmt.Errorf("batcher: instance upload: %w", err)
		}
		buf.Buffer = gb
	}

	b.mu.Lock()
	old := b.buffer
	b.layout = layout
	b.instances = instances
	b.buffer = buf
	b.mu.Unlock()
	if old != nil && old.Buffer != nil {
		b.device.Free(old.Buffer)
	}

	b.logger.Debug("built layout", "groups", len(layout.Groups), "instances", layout.Total, "faults", len(layout.Faults))
	return buf, layout, nil
}

func (b *geometryBatcher) UpdateBuffers() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.layout == nil {
		return ErrNotBuilt
	}
	if b.buffer.Buffer == nil {
		return nil
	}
	b.pack(b.buffer.Data, b.instances)
	return b.device.WriteBuffer(b.buffer.Buffer, 0, b.buffer.Data)
}

// pack writes one instance block per node. Past the parallel threshold the work is split
// into one chunk per worker and joined before returning.
func (b *geometryBatcher) pack(dst []byte, instances []node.Node) {
	if len(instances) < b.threshold || b.workers < 2 {
		packRange(dst, instances, 0, len(instances))
		return
	}

	chunk := (len(instances) + b.workers - 1) / b.workers
	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < len(instances); start += chunk {
		end := min(start+chunk, len(instances))
		wg.Add(1)
		s, e := start, end
		b.pool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				packRange(dst, instances, s, e)
				return nil, nil
			},
		})
		taskID++
	}
	wg.Wait()
}

// packRange writes the world and normal matrices of instances[start:end].
func packRange(dst []byte, instances []node.Node, start, end int) {
	for i := start; i < end; i++ {
		world := instances[i].WorldMatrix()
		var normal [16]float32
		common.NormalMatrix(normal[:], world[:])
		at := i * mesh.InstanceStride
		common.PutFloat32s(dst[at:at+64], world[:])
		common.PutFloat32s(dst[at+64:at+128], normal[:])
	}
}

func (b *geometryBatcher) Layout() *Layout {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layout
}

func (b *geometryBatcher) InstanceBuffer() *InstanceBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer
}

func (b *geometryBatcher) Release() {
	b.mu.Lock()
	buf := b.buffer
	b.buffer = nil
	b.layout = nil
	b.instances = nil
	b.mu.Unlock()
	if buf != nil && buf.Buffer != nil {
		b.device.Free(buf.Buffer)
	}
	b.pool.Stop()
}

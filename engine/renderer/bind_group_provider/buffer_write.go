package bind_group_provider

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/gpu"
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Flush applies writes in order. Every write is attempted; failures are joined.
//
// Parameters:
//   - device: the device that owns the buffers
//   - writes: the writes to apply
//
// Returns:
//   - error: the joined write errors, or nil
func Flush(device gpu.Device, writes ...BufferWrite) error {
	var errs []error
	for _, w := range writes {
		if err := w.Provider.Write(device, w.Binding, w.Offset, w.Data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

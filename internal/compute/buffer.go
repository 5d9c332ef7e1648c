package compute

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// AccessMode is how kernels may access a buffer.
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
	WriteOnly
)

func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

func (m AccessMode) flags() (driver.MemFlags, bool) {
	switch m {
	case ReadWrite:
		return driver.MemReadWrite, true
	case ReadOnly:
		return driver.MemReadOnly, true
	case WriteOnly:
		return driver.MemWriteOnly, true
	}
	return 0, false
}

// Buffer is device memory of fixed size and access mode.
type Buffer struct {
	drv      driver.Driver
	id       driver.MemID
	ctx      *Context
	size     int
	mode     AccessMode
	released bool
}

// NewBuffer allocates size bytes of device memory in ctx. size must be in
// [1, device max allocation size].
func NewBuffer(ctx *Context, size int, mode AccessMode) (*Buffer, error) {
	op := fmt.Sprintf("create %s buffer of %d bytes", mode, size)
	if !ctx.usable() {
		return nil, cl.New(op, cl.PhaseBufferCreate, cl.InvalidContext)
	}
	flags, ok := mode.flags()
	if !ok {
		return nil, cl.New(op, cl.PhaseBufferCreate, cl.InvalidValue)
	}
	id, s := ctx.drv.CreateBuffer(ctx.id, flags, size)
	if !s.OK() {
		return nil, cl.New(op, cl.PhaseBufferCreate, s)
	}
	return &Buffer{drv: ctx.drv, id: id, ctx: ctx, size: size, mode: mode}, nil
}

// NewReadOnlyBuffer allocates a buffer kernels may only read.
func NewReadOnlyBuffer(ctx *Context, size int) (*Buffer, error) {
	return NewBuffer(ctx, size, ReadOnly)
}

// NewWriteOnlyBuffer allocates a buffer kernels may only write.
func NewWriteOnlyBuffer(ctx *Context, size int) (*Buffer, error) {
	return NewBuffer(ctx, size, WriteOnly)
}

func (b *Buffer) ID() driver.MemID { return b.id }
func (b *Buffer) Size() int        { return b.size }
func (b *Buffer) Mode() AccessMode { return b.mode }

// Release frees the device memory. Failures are logged, not returned.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if s := b.drv.ReleaseMemObject(b.id); !s.OK() {
		slog.Warn("Failed to release buffer", "size", b.size, "err", cl.New("release buffer", cl.PhaseBufferRelease, s))
	}
}

func (b *Buffer) usable() bool {
	return b != nil && !b.released
}

package compute

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// Event describes one completed queue command.
type Event struct {
	Op       string // "write", "read" or "execute"
	Kernel   string
	Bytes    int
	Threads  uint64
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Tracer observes queue commands.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(Event)

func (f TracerFunc) Trace(e Event) { f(e) }

type queueConfig struct {
	props  driver.QueueProperties
	tracer Tracer
}

// QueueOption configures NewCommandQueue.
type QueueOption func(*queueConfig)

// WithProfiling requests a queue with profiling enabled.
func WithProfiling() QueueOption {
	return func(c *queueConfig) { c.props |= driver.QueueProfiling }
}

// WithOutOfOrderExecution requests out-of-order execution. Runtimes that
// cannot honor it fail queue creation with CL_INVALID_QUEUE_PROPERTIES.
func WithOutOfOrderExecution() QueueOption {
	return func(c *queueConfig) { c.props |= driver.QueueOutOfOrderExec }
}

// WithTracer reports every command to t.
func WithTracer(t Tracer) QueueOption {
	return func(c *queueConfig) { c.tracer = t }
}

// CommandQueue is an ordered command stream bound to one context and
// device. Every command blocks until it has completed, so commands on the
// same queue complete in submission order.
type CommandQueue struct {
	drv      driver.Driver
	id       driver.QueueID
	ctx      *Context
	device   Device
	tracer   Tracer
	released bool
}

// NewCommandQueue creates a queue for dev in ctx.
func NewCommandQueue(ctx *Context, dev *Device, opts ...QueueOption) (*CommandQueue, error) {
	var cfg queueConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if !ctx.usable() {
		return nil, cl.New("create command queue", cl.PhaseQueueCreate, cl.InvalidContext)
	}
	if dev == nil {
		return nil, cl.New("create command queue", cl.PhaseQueueCreate, cl.InvalidDevice)
	}

	id, s := ctx.drv.CreateCommandQueue(ctx.id, dev.ID, cfg.props)
	if !s.OK() {
		return nil, cl.New("create command queue", cl.PhaseQueueCreate, s)
	}
	return &CommandQueue{drv: ctx.drv, id: id, ctx: ctx, device: *dev, tracer: cfg.tracer}, nil
}

// ID returns the raw queue handle.
func (q *CommandQueue) ID() driver.QueueID { return q.id }

// CopyHostToDevice writes the first numBytes of src into dst and waits for
// the transfer to complete.
func (q *CommandQueue) CopyHostToDevice(src []byte, dst *Buffer, numBytes int) error {
	start := time.Now()
	err := q.transfer("copy host to device", dst, len(src), numBytes, func() cl.Status {
		return q.drv.EnqueueWriteBuffer(q.id, dst.id, 0, src[:numBytes])
	})
	if q.usable() {
		q.trace(Event{Op: "write", Bytes: numBytes, Started: start, Duration: time.Since(start), Err: err})
	}
	return err
}

// CopyDeviceToHost reads numBytes of src into dst and waits for the
// transfer to complete.
func (q *CommandQueue) CopyDeviceToHost(src *Buffer, dst []byte, numBytes int) error {
	start := time.Now()
	err := q.transfer("copy device to host", src, len(dst), numBytes, func() cl.Status {
		return q.drv.EnqueueReadBuffer(q.id, src.id, 0, dst[:numBytes])
	})
	if q.usable() {
		q.trace(Event{Op: "read", Bytes: numBytes, Started: start, Duration: time.Since(start), Err: err})
	}
	return err
}

func (q *CommandQueue) transfer(op string, buf *Buffer, hostLen, numBytes int, enqueue func() cl.Status) error {
	op = fmt.Sprintf("%s (%d bytes)", op, numBytes)
	switch {
	case !q.usable():
		return cl.New(op, cl.PhaseTransfer, cl.InvalidCommandQueue)
	case !buf.usable():
		return cl.New(op, cl.PhaseTransfer, cl.InvalidMemObject)
	case numBytes <= 0 || numBytes > hostLen || numBytes > buf.size:
		return cl.New(op, cl.PhaseTransfer, cl.InvalidValue)
	}
	if s := enqueue(); !s.OK() {
		return cl.New(op, cl.PhaseTransfer, s)
	}
	return nil
}

// Execute launches p over numThreads work-items in one dimension and waits
// for the queue to drain.
func (q *CommandQueue) Execute(p *Program, numThreads uint64) error {
	start := time.Now()
	err := q.execute(p, numThreads)
	if q.usable() {
		name := ""
		if p != nil {
			name = p.entry
		}
		q.trace(Event{Op: "execute", Kernel: name, Threads: numThreads, Started: start, Duration: time.Since(start), Err: err})
	}
	return err
}

func (q *CommandQueue) execute(p *Program, numThreads uint64) error {
	if !q.usable() {
		return cl.New("execute kernel", cl.PhaseExecute, cl.InvalidCommandQueue)
	}
	if !p.usable() {
		return cl.New("execute kernel", cl.PhaseExecute, cl.InvalidKernel)
	}
	op := fmt.Sprintf("execute kernel %q on %d threads", p.entry, numThreads)

	s := q.drv.EnqueueNDRangeKernel(q.id, p.kernel, nil, []uint64{numThreads}, nil)
	if s.OK() {
		s = q.drv.Finish(q.id)
	}
	if s.OK() {
		return nil
	}

	err := cl.New(op, cl.PhaseExecute, s)
	if s == cl.InvalidWorkGroupSize {
		if limit, qerr := p.MaxWorkGroupSize(); qerr == nil {
			err.Reason = fmt.Sprintf("%s (max work-group size is %d)", err.Reason, limit)
		}
	}
	return err
}

func (q *CommandQueue) trace(e Event) {
	if q.tracer != nil {
		q.tracer.Trace(e)
	}
}

// Release releases the queue. Failures are logged, not returned.
func (q *CommandQueue) Release() {
	if q == nil || q.released {
		return
	}
	q.released = true
	if s := q.drv.ReleaseCommandQueue(q.id); !s.OK() {
		slog.Warn("Failed to release command queue", "err", cl.New("release command queue", cl.PhaseQueueRelease, s))
	}
}

func (q *CommandQueue) usable() bool {
	return q != nil && !q.released
}

// Scalar is an element type with a fixed little-endian encoding.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Write copies data into dst, starting at offset zero.
func Write[T Scalar](q *CommandQueue, dst *Buffer, data []T) error {
	raw, err := binary.Append(nil, binary.LittleEndian, data)
	if err != nil {
		return err
	}
	return q.CopyHostToDevice(raw, dst, len(raw))
}

// Read fills out from the start of src.
func Read[T Scalar](q *CommandQueue, src *Buffer, out []T) error {
	raw := make([]byte, binary.Size(out))
	if err := q.CopyDeviceToHost(src, raw, len(raw)); err != nil {
		return err
	}
	_, err := binary.Decode(raw, binary.LittleEndian, out)
	return err
}

package compute

import (
	"log/slog"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// Context is an execution context bound to one device. Every other
// resource is created against a context.
type Context struct {
	drv      driver.Driver
	id       driver.ContextID
	device   Device
	released bool
}

// NewContext creates a context on dev.
func NewContext(dev *Device) (*Context, error) {
	if dev == nil || dev.drv == nil {
		return nil, cl.New("create context", cl.PhaseContextCreate, cl.InvalidDevice)
	}
	id, s := dev.drv.CreateContext(dev.ID)
	if !s.OK() {
		return nil, cl.New("create context", cl.PhaseContextCreate, s)
	}
	slog.Debug("Context created", "device", dev.Name)
	return &Context{drv: dev.drv, id: id, device: *dev}, nil
}

// ID returns the raw runtime handle.
func (c *Context) ID() driver.ContextID { return c.id }

// Device returns the device the context is bound to.
func (c *Context) Device() *Device {
	d := c.device
	return &d
}

// Release releases the context. Failures are logged, not returned.
func (c *Context) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	if s := c.drv.ReleaseContext(c.id); !s.OK() {
		slog.Warn("Failed to release context", "err", cl.New("release context", cl.PhaseContextRelease, s))
	}
}

func (c *Context) usable() bool {
	return c != nil && !c.released
}

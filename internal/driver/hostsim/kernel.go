package hostsim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// KernelFunc is the host implementation of a kernel. It is invoked once per
// work-item. Work-items of one group run sequentially on one goroutine and
// groups run concurrently, so barriers are not supported.
type KernelFunc func(item WorkItem, args *Args)

// WorkItem carries the index space position of one invocation.
type WorkItem struct {
	Dims       int
	GlobalID   [3]uint64
	LocalID    [3]uint64
	GroupID    [3]uint64
	GlobalSize [3]uint64
	LocalSize  [3]uint64
	Offset     [3]uint64
}

// GlobalLinearID flattens the global ID of a work-item, ignoring the offset.
func (w WorkItem) GlobalLinearID() uint64 {
	id := uint64(0)
	stride := uint64(1)
	for d := 0; d < w.Dims; d++ {
		id += (w.GlobalID[d] - w.Offset[d]) * stride
		stride *= w.GlobalSize[d]
	}
	return id
}

type argValue struct {
	param Param
	// scalar bytes, or the backing store of a global buffer or local scratch
	data []byte
}

// Args gives a kernel typed access to its bound arguments.
type Args struct {
	kernel string
	vals   []argValue
}

// Len is the number of declared parameters.
func (a *Args) Len() int { return len(a.vals) }

func (a *Args) at(i int, kinds ...ParamKind) argValue {
	if i < 0 || i >= len(a.vals) {
		panic(fmt.Sprintf("%s: argument %d out of range", a.kernel, i))
	}
	v := a.vals[i]
	for _, k := range kinds {
		if v.param.Kind == k {
			return v
		}
	}
	panic(fmt.Sprintf("%s: argument %d (%s) is a %s parameter", a.kernel, i, v.param.Name, v.param.Kind))
}

// Buffer returns the memory behind a __global, __constant or __local pointer.
func (a *Args) Buffer(i int) []byte {
	return a.at(i, ParamGlobal, ParamLocal).data
}

// Bytes returns the raw bytes of a scalar argument.
func (a *Args) Bytes(i int) []byte {
	return a.at(i, ParamScalar).data
}

func (a *Args) Int32(i int) int32     { return int32(binary.LittleEndian.Uint32(a.Bytes(i))) }
func (a *Args) Uint32(i int) uint32   { return binary.LittleEndian.Uint32(a.Bytes(i)) }
func (a *Args) Int64(i int) int64     { return int64(binary.LittleEndian.Uint64(a.Bytes(i))) }
func (a *Args) Uint64(i int) uint64   { return binary.LittleEndian.Uint64(a.Bytes(i)) }
func (a *Args) Float32(i int) float32 { return math.Float32frombits(a.Uint32(i)) }
func (a *Args) Float64(i int) float64 { return math.Float64frombits(a.Uint64(i)) }

// Half decodes a half-precision scalar as float32.
func (a *Args) Half(i int) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(a.Bytes(i))).Float32()
}

// Element accessors for buffers. idx is an element index, not a byte offset.

func LoadFloat32(buf []byte, idx uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[idx*4:]))
}

func StoreFloat32(buf []byte, idx uint64, v float32) {
	binary.LittleEndian.PutUint32(buf[idx*4:], math.Float32bits(v))
}

func LoadInt32(buf []byte, idx uint64) int32 {
	return int32(binary.LittleEndian.Uint32(buf[idx*4:]))
}

func StoreInt32(buf []byte, idx uint64, v int32) {
	binary.LittleEndian.PutUint32(buf[idx*4:], uint32(v))
}

func LoadUint32(buf []byte, idx uint64) uint32 {
	return binary.LittleEndian.Uint32(buf[idx*4:])
}

func StoreUint32(buf []byte, idx uint64, v uint32) {
	binary.LittleEndian.PutUint32(buf[idx*4:], v)
}

package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/x448/float16"
)

type argKind int

const (
	argScalar argKind = iota
	argInput
	argOutput
	argLocal
)

// kernelArg is a parsed --arg value.
//
//	i32=7 u32=7 i64=7 u64=7 f32=1.5 f64=1.5 f16=1.5   scalars
//	in=@file  in=hex:0a0b  in=i32:1,2,3  in=f32:1.5,2   input buffer
//	out=N                                               output buffer of N bytes
//	local=N                                             N bytes of local memory
type kernelArg struct {
	spec   string
	kind   argKind
	scalar any
	data   []byte
	size   int
}

func parseArgs(specs []string) ([]kernelArg, error) {
	args := make([]kernelArg, len(specs))
	for i, s := range specs {
		a, err := parseArg(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = a
	}
	return args, nil
}

func parseArg(spec string) (kernelArg, error) {
	key, val, ok := strings.Cut(spec, "=")
	if !ok {
		return kernelArg{}, fmt.Errorf("%q: expected kind=value", spec)
	}
	a := kernelArg{spec: spec}

	switch key {
	case "in":
		data, err := parseInput(val)
		if err != nil {
			return kernelArg{}, fmt.Errorf("%q: %w", spec, err)
		}
		if len(data) == 0 {
			return kernelArg{}, fmt.Errorf("%q: input is empty", spec)
		}
		a.kind, a.data, a.size = argInput, data, len(data)
	case "out", "local":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return kernelArg{}, fmt.Errorf("%q: size must be a positive byte count", spec)
		}
		a.kind, a.size = argOutput, n
		if key == "local" {
			a.kind = argLocal
		}
	default:
		v, err := parseScalar(key, val)
		if err != nil {
			return kernelArg{}, fmt.Errorf("%q: %w", spec, err)
		}
		a.kind, a.scalar = argScalar, v
	}
	return a, nil
}

func parseScalar(typ, val string) (any, error) {
	switch typ {
	case "i32":
		v, err := strconv.ParseInt(val, 0, 32)
		return int32(v), err
	case "u32":
		v, err := strconv.ParseUint(val, 0, 32)
		return uint32(v), err
	case "i64":
		v, err := strconv.ParseInt(val, 0, 64)
		return v, err
	case "u64":
		v, err := strconv.ParseUint(val, 0, 64)
		return v, err
	case "f32":
		v, err := strconv.ParseFloat(val, 32)
		return float32(v), err
	case "f64":
		v, err := strconv.ParseFloat(val, 64)
		return v, err
	case "f16":
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return nil, err
		}
		h := float16.Fromfloat32(float32(v))
		if h.IsInf(0) && !math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s overflows half precision", val)
		}
		return h, nil
	}
	return nil, fmt.Errorf("unknown argument kind %q", typ)
}

func parseInput(val string) ([]byte, error) {
	switch {
	case strings.HasPrefix(val, "@"):
		return os.ReadFile(val[1:])
	case strings.HasPrefix(val, "hex:"):
		return hex.DecodeString(val[len("hex:"):])
	}

	typ, list, ok := strings.Cut(val, ":")
	if !ok {
		return nil, fmt.Errorf("input must be @file, hex:<bytes> or <type>:<values>")
	}
	var out []byte
	for _, field := range strings.Split(list, ",") {
		v, err := parseScalar(typ, strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		if out, err = binary.Append(out, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// formatOutput renders buffer contents as hex or as a list of elements.
func formatOutput(data []byte, show string) (string, error) {
	if show == "" || show == "hex" {
		return hex.EncodeToString(data), nil
	}

	var size int
	var elem func([]byte) string
	switch show {
	case "i32":
		size, elem = 4, func(b []byte) string { return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10) }
	case "u32":
		size, elem = 4, func(b []byte) string { return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b)), 10) }
	case "f32":
		size, elem = 4, func(b []byte) string {
			return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
		}
	case "f64":
		size, elem = 8, func(b []byte) string {
			return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
		}
	case "f16":
		size, elem = 2, func(b []byte) string {
			return strconv.FormatFloat(float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()), 'g', -1, 32)
		}
	default:
		return "", fmt.Errorf("unknown output format %q (want hex, i32, u32, f32, f64 or f16)", show)
	}

	if len(data)%size != 0 {
		return "", fmt.Errorf("%d bytes is not a whole number of %s elements", len(data), show)
	}
	parts := make([]string, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		parts = append(parts, elem(data[off:off+size]))
	}
	return strings.Join(parts, " "), nil
}

package cl

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Success, "CL_SUCCESS"},
		{DeviceNotFound, "CL_DEVICE_NOT_FOUND"},
		{InvalidArgIndex, "CL_INVALID_ARG_INDEX"},
		{PlatformNotFoundKHR, "CL_PLATFORM_NOT_FOUND_KHR"},
		{Status(-9999), "CL_UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int32(tt.status), got, tt.want)
		}
	}
	if !Success.OK() || InvalidValue.OK() {
		t.Error("OK reports the wrong status as success")
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(InvalidArgIndex); got != "the argument index is not valid" {
		t.Errorf("Describe(InvalidArgIndex) = %q", got)
	}
	if got := Describe(Status(-9999)); got != "unknown error code: -9999" {
		t.Errorf("Describe(-9999) = %q", got)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		name   string
		phase  Phase
		status Status
		want   string
	}{
		{
			name:   "phase specific",
			phase:  PhaseSetArg,
			status: InvalidArgIndex,
			want:   "the argument index is invalid",
		},
		{
			name:   "same status differs by phase",
			phase:  PhaseBufferCreate,
			status: InvalidValue,
			want:   "the passed flag combination is invalid",
		},
		{
			name:   "falls back to description",
			phase:  PhaseSetArg,
			status: InvalidBufferSize,
			want:   Describe(InvalidBufferSize),
		},
		{
			name:   "generic phase",
			phase:  PhaseGeneric,
			status: InvalidKernel,
			want:   Describe(InvalidKernel),
		},
		{
			name:   "unknown code",
			phase:  PhaseSetArg,
			status: Status(-4242),
			want:   "unknown error code: -4242",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.phase, tt.status); got != tt.want {
				t.Errorf("Reason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorFormatAndMatch(t *testing.T) {
	err := New("set argument 3", PhaseSetArg, InvalidArgIndex)
	want := "set argument 3: CL_INVALID_ARG_INDEX: the argument index is invalid"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("dispatch: %w", err)
	if !errors.Is(wrapped, ErrInvalidArgIndex) {
		t.Error("wrapped error does not match its sentinel")
	}
	if errors.Is(wrapped, ErrInvalidArgSize) {
		t.Error("wrapped error matches an unrelated sentinel")
	}
	if s, ok := StatusOf(wrapped); !ok || s != InvalidArgIndex {
		t.Errorf("StatusOf = %v, %v", s, ok)
	}
	if s, ok := StatusOf(errors.New("plain")); ok || s != Success {
		t.Errorf("StatusOf(plain) = %v, %v", s, ok)
	}

	bare := &Error{Status: InvalidValue}
	if bare.Error() != "CL_INVALID_VALUE" {
		t.Errorf("bare Error() = %q", bare.Error())
	}
}

func TestBuildError(t *testing.T) {
	err := &BuildError{
		Err: New("build program", PhaseProgramBuild, BuildProgramFailure),
		Log: "<source>:2:1: error: boom\n1 error(s) generated.\n\x00",
	}
	if !errors.Is(err, ErrBuildProgramFailure) {
		t.Error("BuildError does not unwrap to its status")
	}
	msg := err.Error()
	if !strings.Contains(msg, "build log:\n<source>:2:1: error: boom") {
		t.Errorf("Error() = %q lacks the log", msg)
	}
	if strings.HasSuffix(msg, "\n") || strings.Contains(msg, "\x00") {
		t.Errorf("Error() = %q keeps trailing padding", msg)
	}

	empty := &BuildError{Err: New("build program", PhaseProgramBuild, BuildProgramFailure), Log: "  \n"}
	if empty.Error() != empty.Err.Error() {
		t.Errorf("empty log Error() = %q", empty.Error())
	}
}

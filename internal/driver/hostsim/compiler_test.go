package hostsim

import (
	"strings"
	"testing"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/google/go-cmp/cmp"
)

func TestCompileKernelDeclarations(t *testing.T) {
	src := `
// helper comment mentioning __kernel void ghost(int x)
__kernel void vadd(__global const float *a, __global const float *b, __global float *c) {
    c[get_global_id(0)] = a[get_global_id(0)] + b[get_global_id(0)];
}

/* multi
   line */
kernel void mix(__local float4 *tmp, const uint n, half h, float3 v) {}
`
	decls, diags := compile(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	want := []kernelDecl{
		{name: "vadd", params: []Param{
			{Name: "a", Type: "float *", Kind: ParamGlobal, Size: 8},
			{Name: "b", Type: "float *", Kind: ParamGlobal, Size: 8},
			{Name: "c", Type: "float *", Kind: ParamGlobal, Size: 8},
		}},
		{name: "mix", params: []Param{
			{Name: "tmp", Type: "float4 *", Kind: ParamLocal, Size: 8},
			{Name: "n", Type: "uint", Kind: ParamScalar, Size: 4},
			{Name: "h", Type: "half", Kind: ParamScalar, Size: 2},
			{Name: "v", Type: "float3", Kind: ParamScalar, Size: 16},
		}},
	}
	if diff := cmp.Diff(want, decls, cmp.AllowUnexported(kernelDecl{})); diff != "" {
		t.Errorf("declarations mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
		line    int
	}{
		{
			name:    "error directive",
			src:     "__kernel void k(int a) {}\n#error unsupported device\n",
			wantMsg: "unsupported device",
			line:    2,
		},
		{
			name:    "unterminated brace",
			src:     "__kernel void k(int a) {\n  a = 1;\n",
			wantMsg: "unterminated '{'",
			line:    1,
		},
		{
			name:    "extra paren",
			src:     "__kernel void k(int a) {\n  a = (1));\n}\n",
			wantMsg: "extraneous closing ')'",
			line:    2,
		},
		{
			name:    "private pointer",
			src:     "__kernel void k(int *a) {}\n",
			wantMsg: "must be declared in the __global, __constant or __local address space",
			line:    1,
		},
		{
			name:    "unknown type",
			src:     "__kernel void k(matrix m) {}\n",
			wantMsg: "unknown type name 'matrix'",
			line:    1,
		},
		{
			name:    "redefinition",
			src:     "__kernel void k(int a) {}\n__kernel void k(int b) {}\n",
			wantMsg: "redefinition of 'k'",
			line:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := compile(tt.src)
			if len(diags) == 0 {
				t.Fatal("expected diagnostics")
			}
			if !strings.Contains(diags[0].msg, tt.wantMsg) {
				t.Errorf("diagnostic %q does not contain %q", diags[0].msg, tt.wantMsg)
			}
			if diags[0].line != tt.line {
				t.Errorf("line = %d, want %d", diags[0].line, tt.line)
			}
		})
	}
}

func TestCompileIgnoresDelimitersInStrings(t *testing.T) {
	src := "__kernel void k(int a) {\n  printf(\"(%d}\\\"\", a);\n}\n"
	if _, diags := compile(src); len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
}

func TestFormatLog(t *testing.T) {
	log := formatLog([]diagnostic{{line: 3, col: 7, msg: "boom"}})
	want := "<source>:3:7: error: boom\n1 error(s) generated.\n"
	if log != want {
		t.Errorf("formatLog = %q, want %q", log, want)
	}
}

func TestTypeSize(t *testing.T) {
	tests := map[string]int{
		"char":         1,
		"unsigned int": 4,
		"double":       8,
		"int2":         8,
		"float3":       16,
		"uchar16":      16,
		"long8":        64,
	}
	for typ, want := range tests {
		got, ok := typeSize(typ)
		if !ok || got != want {
			t.Errorf("typeSize(%q) = %d, %v; want %d", typ, got, ok, want)
		}
	}
	if _, ok := typeSize("image2d_t"); ok {
		t.Error("image2d_t should not resolve")
	}
}

// slowPattern backtracks exponentially on a long run of 'a' that does not
// end the input, so a short timeout always fires.
func slowPattern(flags regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(`^(a+)+$`, flags)
	re.MatchTimeout = time.Millisecond
	return re
}

func TestForEachMatchReportsMatcherError(t *testing.T) {
	calls := 0
	err := forEachMatch(slowPattern(regexp2.None), strings.Repeat("a", 40)+"!", func(*regexp2.Match) { calls++ })
	if err == nil {
		t.Fatal("Expected a match timeout error")
	}
	if calls != 0 {
		t.Errorf("fn called %d times, want 0", calls)
	}
}

func TestCompileSurfacesMatcherError(t *testing.T) {
	prev := errorPattern
	errorPattern = slowPattern(regexp2.Multiline)
	defer func() { errorPattern = prev }()

	decls, diags := compile(strings.Repeat("a", 40) + "!")
	if decls != nil {
		t.Errorf("Expected no declarations, got %v", decls)
	}
	if len(diags) != 1 || diags[0].line != 1 || !strings.Contains(diags[0].msg, "timeout") {
		t.Errorf("Expected one timeout diagnostic, got %v", diags)
	}
}

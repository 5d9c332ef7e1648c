package hostsim

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ParamKind classifies how a kernel parameter is bound.
type ParamKind int

const (
	ParamScalar ParamKind = iota
	ParamGlobal
	ParamLocal
)

func (k ParamKind) String() string {
	switch k {
	case ParamGlobal:
		return "global"
	case ParamLocal:
		return "local"
	default:
		return "scalar"
	}
}

// Param is one declared kernel parameter.
type Param struct {
	Name string
	Type string
	Kind ParamKind
	// Size is the argument size in bytes for scalars. Pointer parameters
	// take a memory handle (global) or a byte count (local).
	Size int
}

type kernelDecl struct {
	name   string
	params []Param
}

var (
	commentPattern = regexp2.MustCompile(`//[^\n]*|/\*[\s\S]*?\*/`, regexp2.None)
	errorPattern   = regexp2.MustCompile(`^[ \t]*#[ \t]*error\b[ \t]*(?<msg>.*)$`, regexp2.Multiline)
	kernelPattern  = regexp2.MustCompile(`\b(?:__kernel|kernel)\s+void\s+(?<name>[A-Za-z_]\w*)\s*\((?<params>[^)]*)\)`, regexp2.None)
)

// scanTimeout bounds each pattern match over kernel source.
const scanTimeout = 2 * time.Second

func init() {
	for _, re := range []*regexp2.Regexp{commentPattern, errorPattern, kernelPattern} {
		re.MatchTimeout = scanTimeout
	}
}

var scalarSizes = map[string]int{
	"bool":   1,
	"char":   1,
	"uchar":  1,
	"short":  2,
	"ushort": 2,
	"half":   2,
	"int":    4,
	"uint":   4,
	"float":  4,
	"long":   8,
	"ulong":  8,
	"double": 8,
	"size_t": 8,

	"unsigned char":  1,
	"unsigned short": 2,
	"unsigned int":   4,
	"unsigned long":  8,
}

// qualifiers that do not affect the argument size.
var qualifiers = map[string]bool{
	"const":       true,
	"volatile":    true,
	"restrict":    true,
	"__private":   true,
	"private":     true,
	"__read_only": true,
	"read_only":   true,
}

type diagnostic struct {
	line, col int
	msg       string
}

// compile scans source for kernel declarations. It returns the declarations
// and a compiler-style log; a non-empty diagnostic list means the build failed.
func compile(source string) ([]kernelDecl, []diagnostic) {
	stripped, err := commentPattern.ReplaceFunc(source, func(m regexp2.Match) string {
		// keep line numbering intact
		if n := strings.Count(m.String(), "\n"); n > 0 {
			return strings.Repeat("\n", n)
		}
		return " "
	}, -1, -1)
	if err != nil {
		return nil, []diagnostic{{line: 1, col: 1, msg: err.Error()}}
	}
	runes := []rune(stripped)

	var diags []diagnostic
	err = forEachMatch(errorPattern, stripped, func(m *regexp2.Match) {
		line, col := position(runes, m.Index)
		diags = append(diags, diagnostic{line: line, col: col, msg: strings.TrimSpace(m.GroupByName("msg").String())})
	})
	if err != nil {
		return nil, append(diags, diagnostic{line: 1, col: 1, msg: err.Error()})
	}

	diags = append(diags, checkBalance(runes)...)
	if len(diags) > 0 {
		return nil, diags
	}

	var decls []kernelDecl
	seen := make(map[string]bool)
	err = forEachMatch(kernelPattern, stripped, func(m *regexp2.Match) {
		name := m.GroupByName("name").String()
		line, col := position(runes, m.Index)
		if seen[name] {
			diags = append(diags, diagnostic{line: line, col: col, msg: fmt.Sprintf("redefinition of '%s'", name)})
		}
		seen[name] = true

		params, err := parseParams(m.GroupByName("params").String())
		if err != nil {
			diags = append(diags, diagnostic{line: line, col: col, msg: err.Error()})
		} else {
			decls = append(decls, kernelDecl{name: name, params: params})
		}
	})
	if err != nil {
		return nil, append(diags, diagnostic{line: 1, col: 1, msg: err.Error()})
	}
	return decls, diags
}

// forEachMatch calls fn for every match of re in s and stops at the first
// matcher error, such as a timeout.
func forEachMatch(re *regexp2.Regexp, s string, fn func(*regexp2.Match)) error {
	m, err := re.FindStringMatch(s)
	for m != nil && err == nil {
		fn(m)
		m, err = re.FindNextMatch(m)
	}
	return err
}

func parseParams(list string) ([]Param, error) {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil, nil
	}

	parts := strings.Split(list, ",")
	params := make([]Param, 0, len(parts))
	for _, part := range parts {
		p, err := parseParam(part)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func parseParam(decl string) (Param, error) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return Param{}, fmt.Errorf("expected parameter declarator")
	}

	pointer := strings.Contains(decl, "*")
	fields := strings.Fields(strings.ReplaceAll(decl, "*", " * "))
	name := fields[len(fields)-1]
	if name == "*" || len(fields) < 2 {
		return Param{}, fmt.Errorf("parameter '%s' has no name", decl)
	}

	kind := ParamScalar
	var typeWords []string
	for _, f := range fields[:len(fields)-1] {
		switch f {
		case "__global", "global", "__constant", "constant":
			kind = ParamGlobal
		case "__local", "local":
			kind = ParamLocal
		case "*":
		default:
			if !qualifiers[f] {
				typeWords = append(typeWords, f)
			}
		}
	}
	typ := strings.Join(typeWords, " ")

	if pointer {
		if kind == ParamScalar {
			return Param{}, fmt.Errorf("pointer parameter '%s' must be declared in the __global, __constant or __local address space", name)
		}
		return Param{Name: name, Type: typ + " *", Kind: kind, Size: 8}, nil
	}
	if kind != ParamScalar {
		return Param{}, fmt.Errorf("parameter '%s' with an address space qualifier must be a pointer", name)
	}

	size, ok := typeSize(typ)
	if !ok {
		return Param{}, fmt.Errorf("unknown type name '%s'", typ)
	}
	return Param{Name: name, Type: typ, Kind: ParamScalar, Size: size}, nil
}

// typeSize resolves scalar and vector type sizes. Three-component vectors
// occupy the storage of four.
func typeSize(typ string) (int, bool) {
	if size, ok := scalarSizes[typ]; ok {
		return size, true
	}
	for _, n := range []string{"16", "8", "4", "3", "2"} {
		base, found := strings.CutSuffix(typ, n)
		if !found {
			continue
		}
		size, ok := scalarSizes[base]
		if !ok {
			return 0, false
		}
		return size * vectorWidths[n], true
	}
	return 0, false
}

var vectorWidths = map[string]int{"2": 2, "3": 4, "4": 4, "8": 8, "16": 16}

func checkBalance(runes []rune) []diagnostic {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	type open struct {
		r   rune
		pos int
	}
	var stack []open
	inString := rune(0)
	escaped := false

	for i, r := range runes {
		if inString != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == inString:
				inString = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			inString = r
		case '(', '[', '{':
			stack = append(stack, open{r: r, pos: i})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].r != pairs[r] {
				line, col := position(runes, i)
				return []diagnostic{{line: line, col: col, msg: fmt.Sprintf("extraneous closing '%c'", r)}}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		line, col := position(runes, top.pos)
		return []diagnostic{{line: line, col: col, msg: fmt.Sprintf("unterminated '%c'", top.r)}}
	}
	return nil
}

func position(runes []rune, index int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < index && i < len(runes); i++ {
		if runes[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func formatLog(diags []diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "<source>:%d:%d: error: %s\n", d.line, d.col, d.msg)
	}
	fmt.Fprintf(&b, "%d error(s) generated.\n", len(diags))
	return b.String()
}

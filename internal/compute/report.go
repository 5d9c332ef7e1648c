package compute

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/cwbudde/cltoolkit/internal/format"
)

// Report lists every platform and its devices as plain text.
func (r *Registry) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Number of platforms available: %d\n", len(r.platforms))
	for pi, p := range r.platforms {
		fmt.Fprintf(&b, "Platform #%d name: %s\n", pi, p.Name)
		fmt.Fprintf(&b, "  Available devices for this platform: %d\n", len(p.Devices))
		for di, d := range p.Devices {
			fmt.Fprintf(&b, "    Device #%d name: %s\n", di, d.Name)
			fmt.Fprintf(&b, "    Device #%d type: %s\n", di, d.KindString())
		}
	}
	return b.String()
}

// WriteTable renders the enumerated devices as a table. The default device
// is marked with an asterisk.
func (r *Registry) WriteTable(w io.Writer) {
	var data [][]string
	for pi, p := range r.platforms {
		for di, d := range p.Devices {
			def := ""
			if r.def != nil && r.def.platform == pi && r.def.device == di {
				def = "*"
			}
			data = append(data, []string{
				p.Name,
				d.Name,
				d.KindString(),
				strconv.FormatUint(uint64(d.ComputeUnits), 10),
				format.Bytes(d.GlobalMemSize),
				format.Bytes(d.LocalMemSize),
				def,
			})
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PLATFORM", "DEVICE", "TYPE", "UNITS", "GLOBAL", "LOCAL", "DEFAULT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

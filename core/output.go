package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// Printer handles all display output for the CLI.
type Printer struct {
	JSON    bool
	Verbose bool
	Writer  io.Writer
}

// NewPrinter creates a default Printer writing to stdout.
func NewPrinter(jsonMode, verbose bool) *Printer {
	return &Printer{JSON: jsonMode, Verbose: verbose, Writer: os.Stdout}
}

// PrintMetadata renders a Metadata struct to the configured output.
func (p *Printer) PrintMetadata(m *Metadata) error {
	if p.JSON {
		return p.printJSON(m)
	}
	p.printText(m)
	return nil
}

// leadSections open the text output in this order; the tag categories
// follow in first-seen order.
var leadSections = []string{"Stream", "Blocks"}

func (p *Printer) printText(m *Metadata) {
	fmt.Fprintf(p.Writer, "%s (%s)\n", m.FilePath, m.Format)
	if len(m.Fields) == 0 {
		fmt.Fprintln(p.Writer, "  no metadata found")
		return
	}

	groups := lo.GroupBy(m.Fields, func(f MetaField) string { return f.Category })
	seen := lo.Uniq(lo.Map(m.Fields, func(f MetaField, _ int) string { return f.Category }))
	order := lo.Filter(leadSections, func(c string, _ int) bool { return len(groups[c]) > 0 })
	order = append(order, lo.Without(seen, leadSections...)...)

	marked := false
	for _, cat := range order {
		fmt.Fprintf(p.Writer, "\n── %s ──\n", cat)
		switch cat {
		case "Blocks":
			marked = p.printBlocks(groups[cat]) || marked
		case "Stream":
			marked = p.printAligned(groups[cat], ": ") || marked
		default:
			marked = p.printAligned(groups[cat], " = ") || marked
		}
	}
	if marked {
		fmt.Fprintln(p.Writer, "\n* replaced on retag")
	}
}

// mark flags the fields a retag replaces, in verbose mode only.
func (p *Printer) mark(f MetaField) string {
	if f.Editable && p.Verbose {
		return "*"
	}
	return " "
}

// printBlocks lists "Block N" fields by index, in stream order, followed by
// the remaining layout facts.
func (p *Printer) printBlocks(fields []MetaField) bool {
	marked := false
	for _, f := range fields {
		m := p.mark(f)
		marked = marked || m == "*"
		if idx, ok := strings.CutPrefix(f.Key, "Block "); ok {
			fmt.Fprintf(p.Writer, " %s[%s] %s\n", m, idx, f.Value)
			continue
		}
		fmt.Fprintf(p.Writer, " %s%s: %s\n", m, f.Key, f.Value)
	}
	return marked
}

func (p *Printer) printAligned(fields []MetaField, sep string) bool {
	width := lo.Max(lo.Map(fields, func(f MetaField, _ int) int { return len(f.Key) }))
	marked := false
	for _, f := range fields {
		m := p.mark(f)
		marked = marked || m == "*"
		fmt.Fprintf(p.Writer, " %s%-*s%s%s\n", m, width, f.Key, sep, f.Value)
	}
	return marked
}

func (p *Printer) printJSON(m *Metadata) error {
	type jsonField struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Category string `json:"category"`
		Editable bool   `json:"editable"`
	}
	type jsonOutput struct {
		FilePath string      `json:"file"`
		Format   string      `json:"format"`
		Fields   []jsonField `json:"fields"`
	}

	out := jsonOutput{
		FilePath: m.FilePath,
		Format:   m.Format,
		Fields:   make([]jsonField, 0, len(m.Fields)),
	}
	for _, f := range m.Fields {
		out.Fields = append(out.Fields, jsonField{
			Key:      f.Key,
			Value:    f.Value,
			Category: f.Category,
			Editable: f.Editable,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.Writer, string(b))
	return err
}

// PrintSuccess prints a success message.
func (p *Printer) PrintSuccess(msg string) {
	fmt.Fprintln(p.Writer, "✓ "+msg)
}

// PrintInfo prints an info line (suppressed in JSON mode).
func (p *Printer) PrintInfo(msg string) {
	if !p.JSON {
		fmt.Fprintln(p.Writer, msg)
	}
}

// PrintError prints an error to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, "✗ Error: "+msg)
}

// ParseKV parses a "Key=Value" string.
func ParseKV(s string) (key, value string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 1 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}

// ResolveOutPath returns dst if non-empty, otherwise src (in-place).
func ResolveOutPath(src, dst string) string {
	if dst == "" {
		return src
	}
	return dst
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// printer writes status lines, colored when enabled.
type printer struct {
	out       io.Writer
	useColors bool
}

func newPrinter(out io.Writer, useColors bool) *printer {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		useColors = false
	}
	return &printer{out: out, useColors: useColors}
}

func (p *printer) print(attr color.Attribute, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.useColors {
		color.New(attr).Fprintf(p.out, "%s%s\n", prefix, msg)
		return
	}
	fmt.Fprintf(p.out, "%s%s\n", prefix, msg)
}

func (p *printer) Info(format string, args ...any) {
	p.print(color.FgCyan, "", format, args...)
}

func (p *printer) Success(format string, args ...any) {
	p.print(color.FgGreen, "✓ ", format, args...)
}

func (p *printer) Warning(format string, args ...any) {
	p.print(color.FgYellow, "! ", format, args...)
}

func (p *printer) Error(format string, args ...any) {
	p.print(color.FgRed, "✗ ", format, args...)
}

// Table renders rows under headers with the borderless style.
func (p *printer) Table(headers []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

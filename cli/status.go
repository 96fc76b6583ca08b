package cli

import (
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	actx "go.hackfix.me/caravel/app/context"
)

// The Status command shows the state of all migrations.
type Status struct{}

// Run the status command.
func (c *Status) Run(appCtx *actx.Context) error {
	m, err := newMigrator(appCtx, true)
	if err != nil {
		return err
	}

	entries, err := m.Status(appCtx.Ctx)
	if err != nil {
		return err
	}

	data := make([][]string, 0, len(entries))
	for _, e := range entries {
		if e.Orphan {
			data = append(data, []string{e.Version, "", "missing", "", ""})
			continue
		}

		state := "pending"
		if e.Applied {
			state = "applied"
		}
		down := "no"
		if e.Migration.HasDown() {
			down = "yes"
		}
		data = append(data, []string{
			e.Version, e.Migration.Name, state, down, base58.Encode(e.Migration.Hash[:8]),
		})
	}

	if err = renderTable([]string{"Version", "Name", "State", "Down", "Hash"}, data, appCtx.Stdout); err != nil {
		return fmt.Errorf("failed rendering status table: %w", err)
	}

	return nil
}

func renderTable(header []string, data [][]string, w io.Writer) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(
			tw.Rendition{
				Borders: tw.BorderNone,
				Symbols: tw.NewSymbols(tw.StyleASCII),
				Settings: tw.Settings{
					Lines: tw.Lines{
						ShowHeaderLine: tw.Off,
						ShowFooterLine: tw.Off,
						ShowTop:        tw.Off,
						ShowBottom:     tw.Off,
					},
					Separators: tw.Separators{
						ShowHeader:     tw.Off,
						ShowFooter:     tw.Off,
						BetweenRows:    tw.Off,
						BetweenColumns: tw.Off,
					},
				},
			},
		)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)

	table.Header(header)
	if err := table.Bulk(data); err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
	"github.com/ajitpratap0/deltashare/pkg/sharing"
)

func listSharesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-shares",
		Short: "List the shares the profile can access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			shares, err := c.ListShares(cmd.Context())
			if err != nil {
				return err
			}
			return writeLines(cmd, shares)
		},
	}
}

func listSchemasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-schemas <share>",
		Short: "List the schemas of a share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			schemas, err := c.ListSchemas(cmd.Context(), protocol.Share{Name: args[0]})
			if err != nil {
				return err
			}
			return writeLines(cmd, schemas)
		},
	}
}

func listTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-tables <share>.<schema>",
		Short: "List the tables of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := splitName(args[0], 2)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			tables, err := c.ListTables(cmd.Context(), protocol.Schema{Share: parts[0], Name: parts[1]})
			if err != nil {
				return err
			}
			return writeLines(cmd, tables)
		},
	}
}

func listAllTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-all-tables [share]",
		Short: "List every table, in one share or in all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			var tables []protocol.Table
			if len(args) == 1 {
				tables, err = c.ListAllTablesInShare(cmd.Context(), protocol.Share{Name: args[0]})
			} else {
				tables, err = c.ListAllTables(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeLines(cmd, tables)
		},
	}
}

func metadataCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <share>.<schema>.<table>",
		Short: "Show the protocol and metadata of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			md, err := c.QueryTableMetadata(cmd.Context(), table)
			if err != nil {
				return err
			}
			return writeLines(cmd, []interface{}{
				map[string]interface{}{protocol.TagProtocol: md.Protocol},
				map[string]interface{}{protocol.TagMetadata: md.Metadata},
			})
		},
	}
}

func tableVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "table-version <share>.<schema>.<table>",
		Short: "Show the current version of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := c.QueryTableVersion(cmd.Context(), table)
			if err != nil {
				return err
			}
			return writeLines(cmd, []map[string]interface{}{{"table": table.FullName(), "version": v}})
		},
	}
}

func loadCmd(a *app) *cobra.Command {
	var limit int
	var hints []string

	cmd := &cobra.Command{
		Use:   "load <profile>#<share>.<schema>.<table>",
		Short: "Read a table and print its rows as JSON lines",
		Long: `Read every data file of a table and print its rows, one JSON object per
line, in file order.

Example:
  deltashare load ./open-datasets.share#delta_sharing.default.owid-covid-data --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := sharing.LoadOptions{
				PredicateHints: hints,
				Config:         a.cfg,
				Logger:         a.log,
			}
			if cmd.Flags().Changed("limit") {
				opts.Limit = &limit
			}

			rs, err := sharing.LoadTable(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			a.log.Info("table loaded", zap.String("url", args[0]), zap.Int("rows", rs.Len()))
			return writeLines(cmd, rs.Rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Keep at most this many rows")
	cmd.Flags().StringArrayVar(&hints, "hint", nil, "Predicate hint sent to the server (repeatable)")
	return cmd
}

// writeLines prints one JSON document per item
func writeLines[T any](cmd *cobra.Command, items []T) error {
	lw := json.NewLinesWriter(cmd.OutOrStdout())
	for _, item := range items {
		if err := lw.Write(item); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write output")
		}
	}
	return lw.Flush()
}

func parseTable(name string) (protocol.Table, error) {
	parts, err := splitName(name, 3)
	if err != nil {
		return protocol.Table{}, err
	}
	return protocol.Table{Share: parts[0], Schema: parts[1], Name: parts[2]}, nil
}

func splitName(name string, n int) ([]string, error) {
	parts := strings.Split(name, ".")
	if len(parts) != n {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected %d dot-separated names, got %q", n, name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "empty name in %q", name)
		}
	}
	return parts, nil
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/transitlake/transitlake/storage"
)

var (
	removeAgencies []string
	removeRoutes   []string
	removeTrips    []string
)

func init() {
	removeCmd.Flags().StringSliceVarP(&removeAgencies, "agency", "a", nil, "agency_id LIKE pattern to remove")
	removeCmd.Flags().StringSliceVarP(&removeRoutes, "route", "r", nil, "route_id LIKE pattern to remove")
	removeCmd.Flags().StringSliceVarP(&removeTrips, "trip", "t", nil, "trip_id LIKE pattern to remove")
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove agencies, routes or trips and their dependent objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(removeAgencies) == 0 && len(removeRoutes) == 0 && len(removeTrips) == 0 {
			return fmt.Errorf("nothing to remove, pass --agency, --route or --trip")
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, pattern := range removeAgencies {
			if err := store.RemoveAgencies(pattern); err != nil {
				return err
			}
		}
		for _, pattern := range removeRoutes {
			if err := store.RemoveRoutes(pattern); err != nil {
				return err
			}
		}
		for _, pattern := range removeTrips {
			if err := store.RemoveTrips(pattern); err != nil {
				return err
			}
		}

		return store.RemoveDependentObjects()
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <subset-database>",
	Short: "Merge a subset database into the lake",
	Long:  "Merges another lake database into this one. Stops are upserted by stop_id, all other static tables are appended.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := openStore(false)
		if err != nil {
			return err
		}
		defer dst.Close()

		src, err := storage.Open(storage.DriverSQLite, args[0], storage.Options{ReadOnly: true})
		if err != nil {
			return err
		}
		defer src.Close()

		return storage.MergeStaticByStopID(dst, src)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <directory-or-zip>",
	Short: "Export the static tables as GTFS CSV files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(true)
		if err != nil {
			return err
		}
		defer store.Close()

		return storage.ExportStatic(store, args[0])
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql <file>",
	Short: "Execute a SQL file against the lake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Exec(string(script))
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show row counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(true)
		if err != nil {
			return err
		}
		defer store.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, table := range store.TableNames() {
			count, err := store.RowCount(table)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\n", table, count)
		}
		return w.Flush()
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/transitlake/transitlake/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transitlake",
	Short:        "GTFS data lake and realtime reconciliation server",
	SilenceUsage: true,
}

var (
	databaseDSN string
	driverName  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&databaseDSN, "database", "d", "transitlake.db", "database path or DSN")
	rootCmd.PersistentFlags().StringVarP(&driverName, "driver", "", storage.DriverSQLite, "database driver (sqlite or postgres)")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(realtimeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func openStore(readOnly bool) (*storage.SQLStore, error) {
	return storage.Open(driverName, databaseDSN, storage.Options{ReadOnly: readOnly})
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/transitlake/transitlake/downloader"
	"github.com/transitlake/transitlake/parse"
)

var loadCmd = &cobra.Command{
	Use:   "load <zip-file-or-url>",
	Short: "Load a static GTFS bundle into the lake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		var buf []byte
		var err error
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			buf, err = downloader.Fetch(cmd.Context(), source, downloader.Options{})
			if err != nil {
				return fmt.Errorf("downloading %s: %w", source, err)
			}
		} else {
			buf, err = os.ReadFile(source)
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := parse.LoadStatic(store, buf); err != nil {
			return fmt.Errorf("loading %s: %w", source, err)
		}

		fmt.Printf("loaded %s\n", source)
		return nil
	},
}

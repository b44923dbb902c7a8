package storage

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExportStatic writes the static tables as GTFS CSV files. A target
// ending in .zip produces a single bundle, anything else a directory
// of .txt files.
func ExportStatic(s Store, target string) error {
	if strings.HasSuffix(target, ".zip") {
		return exportZip(s, target)
	}
	return exportDirectory(s, target)
}

func exportDirectory(s Store, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	for _, table := range s.TableNames() {
		f, err := os.Create(filepath.Join(dir, table+".txt"))
		if err != nil {
			return fmt.Errorf("creating %s.txt: %w", table, err)
		}
		err = exportTable(s, table, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func exportZip(s Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export bundle: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, table := range s.TableNames() {
		w, err := zw.Create(table + ".txt")
		if err != nil {
			return fmt.Errorf("creating %s.txt in bundle: %w", table, err)
		}
		if err := exportTable(s, table, w); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing export bundle: %w", err)
	}
	return nil
}

func exportTable(s Store, table string, w io.Writer) error {
	columns, rows, err := s.DumpTable(table)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing %s header: %w", table, err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing %s row: %w", table, err)
		}
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", table, err)
	}
	return nil
}

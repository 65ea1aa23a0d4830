// Package refdata loads the pH reference tables the classifier matches
// samples against.
//
// A table is an ordered CSV file of rows `label,red,green,blue` where the
// three components are the expected per-channel frequencies in Hertz for a
// sample of that pH. Row order matters: the classifier resolves ties by
// insertion order, so the file is read sequentially and never reordered.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/ph.report/internal/security"
)

// Entry is one reference row: a pH label and its RGB frequency signature.
type Entry struct {
	Label string
	Hertz [3]float64
}

// Table is an ordered, immutable reference table.
type Table struct {
	Name    string
	Entries []Entry
}

// Load reads a reference table from a CSV file. Rows must have exactly four
// fields with non-negative integer colour components. A row whose three
// components are all zero is rejected here so a zero-magnitude vector can
// never reach the classifier's angle computation.
func Load(name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	t := &Table{Name: name}
	row := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reference table %s: %w", path, err)
		}
		row++

		e := Entry{Label: record[0]}
		zero := true
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(record[i+1])
			if err != nil {
				return nil, fmt.Errorf("row %d of %s: invalid %s component %q", row, path, colourName(i), record[i+1])
			}
			if v < 0 {
				return nil, fmt.Errorf("row %d of %s: negative %s component %d", row, path, colourName(i), v)
			}
			if v != 0 {
				zero = false
			}
			e.Hertz[i] = float64(v)
		}
		if zero {
			return nil, fmt.Errorf("row %d of %s: reference %q has zero magnitude", row, path, e.Label)
		}

		t.Entries = append(t.Entries, e)
	}

	if len(t.Entries) == 0 {
		return nil, fmt.Errorf("reference table %s is empty", path)
	}
	return t, nil
}

func colourName(i int) string {
	switch i {
	case 0:
		return "red"
	case 1:
		return "green"
	case 2:
		return "blue"
	}
	return "unknown"
}

// Store maps a table selector ("narrow", "wide") to a CSV file under the
// tables directory. Tables are loaded per request so edits to the files take
// effect on the next reading without a restart; a loaded Table is immutable
// for the duration of the session that uses it.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads the table for the given selector. The selector is embedded in a
// file name, so it is sanitised and the resolved path is validated to stay
// inside the tables directory.
func (s *Store) Load(selector string) (*Table, error) {
	name := security.SanitizeFilename(selector)
	path := filepath.Join(s.dir, name+"_data.csv")
	if err := security.ValidatePathWithinDirectory(path, s.dir); err != nil {
		return nil, fmt.Errorf("invalid table selector %q: %w", selector, err)
	}
	return Load(name, path)
}

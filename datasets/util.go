package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// parseFloat parses a CSV cell. Empty cells and NA markers are missing values.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// countCSVRows counts the number of data rows in a CSV file (excluding header)
func countCSVRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, err
	}

	count := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}

	return count, nil
}

// ReadCSV loads a site dataset from a CSV file with a "time" column in
// RFC 3339 format followed by one column per variable. The site name is taken
// from the file name.
func ReadCSV(path string) (*Dataset, error) {
	rows, err := countCSVRows(path)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	timeCol := -1
	names := make([]string, len(header))
	for i, col := range header {
		names[i] = strings.TrimSpace(col)
		if strings.ToLower(names[i]) == "time" {
			timeCol = i
		}
	}
	if timeCol == -1 {
		return nil, fmt.Errorf("required column %q not found in %s", "time", path)
	}

	times := make([]time.Time, 0, rows)
	cols := make([][]float64, len(header))
	for i := range cols {
		cols[i] = make([]float64, 0, rows)
	}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		line++
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(record[timeCol]))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: failed to parse time: %w", path, line, err)
		}
		times = append(times, t.UTC())
		for i, cell := range record {
			if i == timeCol {
				continue
			}
			v, err := parseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: failed to parse %s: %w", path, line, names[i], err)
			}
			cols[i] = append(cols[i], v)
		}
	}

	site := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ds := NewDataset(site, times)
	for i, n := range names {
		if i == timeCol {
			continue
		}
		ds.Vars[n] = cols[i]
	}
	return ds, nil
}

// WriteCSV writes a dataset in the layout read by ReadCSV.
func WriteCSV(path string, ds *Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	names := make([]string, 0, len(ds.Vars))
	for _, n := range ds.Variables() {
		names = append(names, n)
		if _, ok := ds.Vars[n+QCSuffix]; ok {
			names = append(names, n+QCSuffix)
		}
	}

	w := csv.NewWriter(file)
	if err := w.Write(append([]string{"time"}, names...)); err != nil {
		return err
	}
	record := make([]string, len(names)+1)
	for i, t := range ds.Time {
		record[0] = t.UTC().Format(time.RFC3339)
		for j, n := range names {
			v := ds.Vars[n][i]
			if math.IsNaN(v) {
				record[j+1] = ""
				continue
			}
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

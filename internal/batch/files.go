package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/export"
	"github.com/ironsheep/cellcount-mcp/internal/imaging"
)

// CSVName is the file WriteOutputs writes the results table to.
const CSVName = "results.csv"

// ErrNoImages is returned by ListImages when dir holds no supported images.
var ErrNoImages = errors.New("no images found")

// ListImages returns the supported images directly inside dir, sorted by name.
// Subdirectories are not searched.
func ListImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input directory: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imaging.IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// WriteOutputs saves the requested artifacts for report into dir, creating it if
// needed, and returns the paths written.
//
// Parameters:
//   - report: A finished batch report.
//   - dir: Output directory.
//   - saveAnnotated: Write one "<stem>_annotated.png" overlay per result.
//   - saveCSV: Write the results table to "results.csv".
func WriteOutputs(report *Report, dir string, saveAnnotated, saveCSV bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	if saveAnnotated {
		for _, r := range report.Results {
			if r.Annotated == nil {
				continue
			}
			path := filepath.Join(dir, export.ArchiveName(r.Filename))
			if err := imaging.SavePNG(path, r.Annotated); err != nil {
				return written, fmt.Errorf("%s: %w", r.Filename, err)
			}
			written = append(written, path)
		}
	}

	if saveCSV {
		path := filepath.Join(dir, CSVName)
		if err := writeCSVFile(path, export.Tabulate(report.Results)); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeCSVFile(path string, rows []export.Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return export.WriteCSV(f, rows)
}

// WriteSummary prints per-class totals and batch percentages to w.
func WriteSummary(w io.Writer, report *Report) error {
	m := report.Metrics
	lines := []string{
		"",
		"==================================================",
		"BATCH PROCESSING SUMMARY",
		"==================================================",
		fmt.Sprintf("Images processed: %d", m.NumImages),
	}
	if n := len(report.Failures); n > 0 {
		lines = append(lines, fmt.Sprintf("Images skipped:   %d", n))
	}
	lines = append(lines, fmt.Sprintf("Total cells:      %d", m.Total()), "", "Cell counts:")
	for _, c := range classes.Known {
		lines = append(lines, fmt.Sprintf("  %10s: %6d (%5.2f%%)", c.String(), m.TotalCounts.Get(c), m.Percentages.Get(c)))
	}
	lines = append(lines, "==================================================")

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

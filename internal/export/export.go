// Package export turns per-image detection results into download artifacts: a
// table of counts, its CSV encoding, and a ZIP archive of annotated overlays.
//
// Every function here is a pure transform of its inputs. An error from one export
// call leaves the results it was given untouched and reusable.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/detection"
	"github.com/ironsheep/cellcount-mcp/internal/imaging"
)

// Header is the CSV header row, in column order.
var Header = []string{"Filename", "RBC", "WBC", "Platelets", "Total", "RBC %", "WBC %", "Platelets %"}

// AnnotatedSuffix is appended to the filename stem of every archived overlay.
const AnnotatedSuffix = "_annotated.png"

// Row is one line of the results table.
type Row struct {
	Filename     string `json:"Filename"`
	RBC          int    `json:"RBC"`
	WBC          int    `json:"WBC"`
	Platelets    int    `json:"Platelets"`
	Total        int    `json:"Total"`
	RBCPct       string `json:"RBC %"`
	WBCPct       string `json:"WBC %"`
	PlateletsPct string `json:"Platelets %"`
}

// Record returns the row's fields in Header order.
func (r Row) Record() []string {
	return []string{
		r.Filename,
		strconv.Itoa(r.RBC),
		strconv.Itoa(r.WBC),
		strconv.Itoa(r.Platelets),
		strconv.Itoa(r.Total),
		r.RBCPct,
		r.WBCPct,
		r.PlateletsPct,
	}
}

// FormatPercent renders a percentage with one decimal, e.g. "60.0%".
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

// Tabulate builds one row per result, in input order.
//
// Total is the sum of the three known-class counts. Percentages come from each
// result's own counts, not from batch metrics. Nil results are skipped.
func Tabulate(results []*detection.Result) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		pct := r.Counts.Percentages()
		rows = append(rows, Row{
			Filename:     r.Filename,
			RBC:          r.Counts.Get(classes.RBC),
			WBC:          r.Counts.Get(classes.WBC),
			Platelets:    r.Counts.Get(classes.Platelets),
			Total:        r.Counts.Total(),
			RBCPct:       FormatPercent(pct.Get(classes.RBC)),
			WBCPct:       FormatPercent(pct.Get(classes.WBC)),
			PlateletsPct: FormatPercent(pct.Get(classes.Platelets)),
		})
	}
	return rows
}

// WriteCSV writes the header and one line per row to w as UTF-8 CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// EncodeCSV returns the CSV encoding of rows.
func EncodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a table written by WriteCSV. The header must match exactly.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected csv header %q", header)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		ints := make([]int, 4)
		for i := range ints {
			ints[i], err = strconv.Atoi(rec[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, Header[i+1], err)
			}
		}

		rows = append(rows, Row{
			Filename:     rec[0],
			RBC:          ints[0],
			WBC:          ints[1],
			Platelets:    ints[2],
			Total:        ints[3],
			RBCPct:       rec[5],
			WBCPct:       rec[6],
			PlateletsPct: rec[7],
		})
	}
	return rows, nil
}

// Named pairs an image with the filename it came from.
type Named struct {
	Filename string
	Image    image.Image
}

// Annotated returns the overlay of every non-nil result, in input order.
func Annotated(results []*detection.Result) []Named {
	out := make([]Named, 0, len(results))
	for _, r := range results {
		if r == nil || r.Annotated == nil {
			continue
		}
		out = append(out, Named{Filename: r.Filename, Image: r.Annotated})
	}
	return out
}

// ArchiveName derives the archive entry name for filename: the text after the
// last "." is removed and "_annotated.png" appended. A name without a dot keeps
// its full text as the stem.
func ArchiveName(filename string) string {
	stem := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		stem = filename[:i]
	}
	return stem + AnnotatedSuffix
}

// PackageImages encodes every image as PNG and stores it in a deflate-compressed
// ZIP under ArchiveName(filename).
//
// Inputs whose derived names collide (for example "a.jpg" and "a.png") overwrite
// each other: the later input wins and the archive holds a single entry. Entries
// appear in the order their names were first seen.
func PackageImages(images []Named) ([]byte, error) {
	order := make([]string, 0, len(images))
	encoded := make(map[string][]byte, len(images))

	for _, n := range images {
		if n.Image == nil {
			return nil, fmt.Errorf("no image for %q", n.Filename)
		}
		var buf bytes.Buffer
		if err := imaging.EncodePNG(&buf, n.Image); err != nil {
			return nil, fmt.Errorf("%s: %w", n.Filename, err)
		}
		name := ArchiveName(n.Filename)
		if _, seen := encoded[name]; !seen {
			order = append(order, name)
		}
		encoded[name] = buf.Bytes()
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, name := range order {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(encoded[name]); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return out.Bytes(), nil
}

// PackageImageMap is PackageImages for a filename to image mapping. Keys are
// processed in sorted order so the winner of a name collision is deterministic.
func PackageImageMap(images map[string]image.Image) ([]byte, error) {
	keys := make([]string, 0, len(images))
	for k := range images {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	named := make([]Named, 0, len(keys))
	for _, k := range keys {
		named = append(named, Named{Filename: k, Image: images[k]})
	}
	return PackageImages(named)
}

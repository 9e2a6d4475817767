// Package sheet extracts consumer milk prices from the SNIIM "Leche"
// spreadsheet. The report is human-authored: one or more price tables, each
// introduced by a marker phrase, followed by a date row, a channel header and
// a run of state/city rows with four price columns.
package sheet

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xuri/excelize/v2"

	"milkcast/internal/domain"
)

// Layout offsets relative to the marker row.
const (
	dateRowOffset    = 1
	channelRowOffset = 3
	dataRowOffset    = 4

	firstPriceCol = 2
	priceCols     = 4
	blockWidth    = firstPriceCol + priceCols
)

var (
	markerPhrases = []string{
		"precio promedio al consumidor por litro",
		"average consumer price per liter",
	}
	terminatorWords = []string{"promedio", "average", "fuente", "source", "sniim"}
	headerLabels    = []string{"estado", "state"}
	aggregateWords  = []string{"promedio", "average"}

	// typeSequence pairs positionally with the four channel labels.
	typeSequence = [priceCols]domain.MilkType{
		domain.MilkPasteurized,
		domain.MilkPasteurized,
		domain.MilkUltraPasteurized,
		domain.MilkUltraPasteurized,
	}
)

// ErrNoBlocks is returned when a document contains no readable price table.
var ErrNoBlocks = fmt.Errorf("%w: no price table found", domain.ErrExtraction)

// Result is the outcome of extracting one document.
type Result struct {
	Records []domain.PriceRecord
	// Blocks is the number of price tables read successfully.
	Blocks int
	// Skipped holds one *domain.ExtractionError per block that was dropped.
	Skipped []error
}

// Err aggregates the skipped-block errors, or returns nil if none.
func (r Result) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, err := range r.Skipped {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// ExtractFile reads the first worksheet of an xlsx document and extracts it.
func ExtractFile(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w: opening workbook: %v", domain.ErrExtraction, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fmt.Errorf("%w: workbook has no sheets", domain.ErrExtraction)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading sheet %q: %v", domain.ErrExtraction, sheets[0], err)
	}
	return Extract(rows)
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

type scanState int

const (
	seekingMarker scanState = iota
	readingHeader
	readingRows
	blockDone
)

// block is one price table in wide form.
type block struct {
	marker   int
	date     time.Time
	channels [priceCols]string
	rows     []wideRow
}

type wideRow struct {
	state, city string
	prices      [priceCols]string
}

// Extract scans rows for price tables and returns them in long form, one
// record per (row, milk type, channel). Blocks whose header cannot be read
// are skipped and reported in Result.Skipped.
func Extract(rows [][]string) (Result, error) {
	var (
		res  Result
		st   = seekingMarker
		cur  *block
		fill filler
		i    int
	)

	for {
		switch st {
		case seekingMarker:
			if i >= len(rows) {
				return finish(res)
			}
			if isMarkerRow(rows[i]) {
				cur = &block{marker: i}
				st = readingHeader
				continue
			}
			i++

		case readingHeader:
			if err := readHeader(rows, cur); err != nil {
				res.Skipped = append(res.Skipped, err)
				i = cur.marker + 1
				cur = nil
				st = seekingMarker
				continue
			}
			i = cur.marker + dataRowOffset
			fill = filler{}
			st = readingRows

		case readingRows:
			if i >= len(rows) {
				st = blockDone
				continue
			}
			row, ok := fill.next(rows[i])
			if !ok {
				// The terminator row stays unconsumed: it may open the
				// next block.
				st = blockDone
				continue
			}
			if row.city != "" {
				cur.rows = append(cur.rows, row)
			}
			i++

		case blockDone:
			res.Records = append(res.Records, cur.long()...)
			res.Blocks++
			cur = nil
			st = seekingMarker
		}
	}
}

func finish(res Result) (Result, error) {
	kept := res.Records[:0]
	for _, r := range res.Records {
		if !isAggregateCity(r.City) {
			kept = append(kept, r)
		}
	}
	res.Records = kept
	if res.Blocks == 0 {
		return res, ErrNoBlocks
	}
	return res, nil
}

// readHeader parses the date and channel rows below the marker.
func readHeader(rows [][]string, b *block) error {
	dateIdx := b.marker + dateRowOffset
	if dateIdx >= len(rows) {
		return &domain.ExtractionError{Row: b.marker, Reason: "missing date row"}
	}
	t, err := findDate(rows[dateIdx])
	if err != nil {
		return &domain.ExtractionError{Row: b.marker, Reason: err.Error()}
	}
	b.date = t

	chIdx := b.marker + channelRowOffset
	if chIdx >= len(rows) {
		return &domain.ExtractionError{Row: b.marker, Reason: "missing channel header row"}
	}
	for j := 0; j < priceCols; j++ {
		label := strings.TrimSpace(cell(rows[chIdx], firstPriceCol+j))
		if label == "" {
			return &domain.ExtractionError{
				Row:    b.marker,
				Reason: fmt.Sprintf("blank channel label in column %d", firstPriceCol+j),
			}
		}
		b.channels[j] = label
	}
	return nil
}

// long reshapes the block from one column per type×channel to one record
// per combination.
func (b *block) long() []domain.PriceRecord {
	out := make([]domain.PriceRecord, 0, len(b.rows)*priceCols)
	for _, r := range b.rows {
		for j := 0; j < priceCols; j++ {
			out = append(out, domain.PriceRecord{
				Date:     b.date,
				State:    r.state,
				City:     r.city,
				MilkType: typeSequence[j],
				Channel:  b.channels[j],
				Price:    parsePrice(r.prices[j]),
			})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Forward fill
// ---------------------------------------------------------------------------

// filler carries the last seen state and city down a block. The source
// prints a state once and leaves the cells below it blank.
type filler struct {
	state, city string
}

// next folds one raw row into a wide row. It returns false when the row
// terminates the block.
func (f *filler) next(cells []string) (wideRow, bool) {
	if isBlankRow(cells) || isMarkerRow(cells) {
		return wideRow{}, false
	}
	st := strings.TrimSpace(cell(cells, 0))
	switch {
	case st != "":
		if isTerminator(st) {
			return wideRow{}, false
		}
		f.state = st
	case f.state == "":
		return wideRow{}, false
	}
	if c := strings.TrimSpace(cell(cells, 1)); c != "" {
		f.city = c
	}

	row := wideRow{state: f.state, city: f.city}
	for j := 0; j < priceCols; j++ {
		row.prices[j] = cell(cells, firstPriceCol+j)
	}
	return row, true
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

func isMarkerRow(cells []string) bool {
	for _, c := range cells {
		lc := strings.ToLower(c)
		for _, p := range markerPhrases {
			if strings.Contains(lc, p) {
				return true
			}
		}
	}
	return false
}

func isTerminator(first string) bool {
	c := strings.ToLower(strings.TrimSpace(first))
	for _, w := range terminatorWords {
		if strings.Contains(c, w) {
			return true
		}
	}
	for _, h := range headerLabels {
		if c == h {
			return true
		}
	}
	return false
}

func isBlankRow(cells []string) bool {
	for j := 0; j < blockWidth; j++ {
		if strings.TrimSpace(cell(cells, j)) != "" {
			return false
		}
	}
	return true
}

func isAggregateCity(city string) bool {
	lc := strings.ToLower(city)
	for _, w := range aggregateWords {
		if strings.Contains(lc, w) {
			return true
		}
	}
	return false
}

func cell(cells []string, j int) string {
	if j < len(cells) {
		return cells[j]
	}
	return ""
}

// parsePrice returns nil for anything that is not a finite number.
func parsePrice(s string) *float64 {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

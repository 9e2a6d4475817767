package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use
// errors.Is without caring about the detail fields.
var (
	ErrExtraction         = errors.New("extraction failed")
	ErrPartitionNotFound  = errors.New("partition not found")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrAvailabilityCheck  = errors.New("availability check failed")
	ErrUpstreamDownload   = errors.New("upstream download failed")
	ErrNoRowsForDate      = errors.New("no rows found for the execution date")
	ErrObjectNotFound     = errors.New("object not found")
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// ExtractionError reports a malformed or unrecognized spreadsheet block.
// Row is the zero-based row index of the block marker.
type ExtractionError struct {
	Row    int
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction: block at row %d: %s", e.Row, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return ErrExtraction }

// PartitionNotFoundError reports that no partition exists for the requested
// day or month.
type PartitionNotFoundError struct {
	Granularity Granularity
	Date        time.Time
	Key         string
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("%s partition for %s not found (%s)", e.Granularity, e.Date.Format(DateLayout), e.Key)
}

func (e *PartitionNotFoundError) Unwrap() error { return ErrPartitionNotFound }

// InsufficientDataError reports a window holding too little data to go on.
// Start and End bound the window; both are zero when the shortfall is not
// tied to dates.
type InsufficientDataError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if e.Start.IsZero() && e.End.IsZero() {
		return fmt.Sprintf("insufficient data: %s", e.Reason)
	}
	return fmt.Sprintf("insufficient data for %s..%s: %s",
		e.Start.Format(DateLayout), e.End.Format(DateLayout), e.Reason)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// AvailabilityCheckError reports a failure to determine whether a report is
// published. It is never a synonym for "not published".
type AvailabilityCheckError struct {
	URL    string
	Status int
	Err    error
}

func (e *AvailabilityCheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("availability check %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("availability check %s: unexpected status %d", e.URL, e.Status)
}

func (e *AvailabilityCheckError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAvailabilityCheck, e.Err}
	}
	return []error{ErrAvailabilityCheck}
}

// UpstreamDownloadError reports a non-success response fetching a report.
type UpstreamDownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *UpstreamDownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("downloading %s: status %d", e.URL, e.Status)
}

func (e *UpstreamDownloadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamDownload, e.Err}
	}
	return []error{ErrUpstreamDownload}
}

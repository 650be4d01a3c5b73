package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReportKind identifies a downloadable usage report.
type ReportKind string

const (
	// ReportOneDrive is the OneDrive usage account detail report.
	ReportOneDrive ReportKind = "onedrive"
	// ReportExchange is the Exchange mailbox usage detail report.
	ReportExchange ReportKind = "exchange"
)

// ParseReportKind validates a report kind.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(s) {
	case ReportOneDrive, ReportExchange:
		return ReportKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown report %q (use onedrive or exchange)", ErrInvalidInput, s)
	}
}

// ReportPeriod is the look-back window of a usage report.
type ReportPeriod string

// Report periods accepted by the usage report endpoints.
const (
	PeriodD7   ReportPeriod = "D7"
	PeriodD30  ReportPeriod = "D30"
	PeriodD90  ReportPeriod = "D90"
	PeriodD180 ReportPeriod = "D180"
)

// DefaultReportPeriod is used when no period is given.
const DefaultReportPeriod = PeriodD7

// ReportPeriods lists the accepted periods.
func ReportPeriods() []ReportPeriod {
	return []ReportPeriod{PeriodD7, PeriodD30, PeriodD90, PeriodD180}
}

// ParseReportPeriod validates a period, defaulting empty input to D7.
func ParseReportPeriod(s string) (ReportPeriod, error) {
	if s == "" {
		return DefaultReportPeriod, nil
	}
	for _, p := range ReportPeriods() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown period %q (use D7, D30, D90 or D180)", ErrInvalidInput, s)
}

// Report is a downloaded CSV usage report.
type Report struct {
	Kind     ReportKind
	Period   ReportPeriod
	Filename string
	Data     []byte
}

// ReportFilename builds the conventional download name for a report.
func ReportFilename(kind ReportKind, period ReportPeriod, at time.Time) string {
	return fmt.Sprintf("%s_usage_%s_%d.csv", kind, period, at.UnixMilli())
}

// Organization is the raw organisation profile returned by the backend.
// Its shape follows Microsoft Graph and is not modelled field by field.
type Organization struct {
	Raw json.RawMessage
}

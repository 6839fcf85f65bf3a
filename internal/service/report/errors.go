package report

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("report not found")
	ErrAmbiguousName = errors.New("report name matches more than one report")
	ErrReportExists  = errors.New("a report already exists at this path")
)

package report

import (
	"errors"

	"go.uber.org/multierr"
)

// Sentinel errors matched with errors.Is against an *Error of that kind
var (
	ErrSpecification = errors.New("specification error")
	ErrCapacity      = errors.New("capacity error")
	ErrState         = errors.New("state error")
	ErrProvider      = errors.New("provider error")
	ErrAuthorization = errors.New("authorization error")
)

var kindSentinels = map[Kind]error{
	KindSpecification: ErrSpecification,
	KindCapacity:      ErrCapacity,
	KindState:         ErrState,
	KindProvider:      ErrProvider,
	KindAuthorization: ErrAuthorization,
}

// Error is an expected failure carrying a structured report
type Error struct {
	Report *Report
}

// Errorf creates an *Error with a new report
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Report: New(code, format, args...)}
}

// Wrap creates an *Error around an existing report
func Wrap(r *Report) *Error {
	return &Error{Report: r}
}

func (e *Error) Error() string {
	if e.Report == nil {
		return "scheduling failed"
	}
	return e.Report.Message
}

// Code returns the code of the top report
func (e *Error) Code() Code {
	if e.Report == nil {
		return ""
	}
	return e.Report.Code
}

// Kind returns the failure kind of the top report
func (e *Error) Kind() Kind {
	if e.Report == nil {
		return KindInternal
	}
	return e.Report.Kind
}

// Is matches the kind sentinels
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind()]
	return ok && sentinel == target
}

// ReportOf extracts the report from err. Errors that are not scheduling
// errors are rendered as internal reports.
func ReportOf(err error) *Report {
	if err == nil {
		return nil
	}
	var schedErr *Error
	if errors.As(err, &schedErr) && schedErr.Report != nil {
		return schedErr.Report
	}
	return &Report{Kind: KindInternal, Severity: SeverityError, Message: err.Error()}
}

// Combine returns a report with code whose children are the reports of
// every error in err (as produced by multierr.Append).
func Combine(code Code, err error, format string, args ...interface{}) *Error {
	top := New(code, format, args...)
	for _, e := range multierr.Errors(err) {
		top.AddChild(ReportOf(e))
	}
	return Wrap(top)
}

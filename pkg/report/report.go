package report

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure for callers and for rendering
type Kind string

const (
	KindSpecification Kind = "specification"
	KindCapacity      Kind = "capacity"
	KindState         Kind = "state"
	KindProvider      Kind = "provider"
	KindAuthorization Kind = "authorization"
	KindInternal      Kind = "internal"
)

// Severity of a report entry
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Code identifies a report type
type Code string

const (
	// Scheduling progress
	CodeAllocating            Code = "allocating"
	CodeAllocatingResource    Code = "allocating-resource"
	CodeAllocatingAlias       Code = "allocating-alias"
	CodeAllocatingAliasSet    Code = "allocating-alias-set"
	CodeAllocatingRoom        Code = "allocating-room"
	CodeAllocatingValue       Code = "allocating-value"
	CodeAllocatingCompound    Code = "allocating-compound"
	CodeReusingReservation    Code = "reusing-reservation"
	CodeReallocatingValue     Code = "reallocating-value"
	CodeOptionalChildSkipped  Code = "optional-child-skipped"
	CodeSpecificationNotReady Code = "specification-not-ready"

	// Specification errors
	CodeSpecificationInvalid        Code = "specification-invalid"
	CodeSpecificationNotAllocatable Code = "specification-not-allocatable"
	CodeSlotEmpty                   Code = "slot-empty"
	CodeSlotInPast                  Code = "slot-in-past"
	CodeResourceNotFound            Code = "resource-not-found"
	CodeResourceMultipleRequested   Code = "resource-multiple-requested"
	CodeResourceNotEndpoint         Code = "resource-not-endpoint"
	CodeReusedSlotInvalid           Code = "reused-slot-invalid"

	// Capacity and conflict errors
	CodeResourceNotAllocatable       Code = "resource-not-allocatable"
	CodeResourceAlreadyAllocated     Code = "resource-already-allocated"
	CodeRoomCapacityExceeded         Code = "room-capacity-exceeded"
	CodeRoomSingleLimitExceeded      Code = "room-single-limit-exceeded"
	CodeRoomNotAvailable             Code = "room-not-available"
	CodeAliasNotAvailable            Code = "alias-not-available"
	CodeAliasAlreadyAllocated        Code = "alias-already-allocated"
	CodeValueAlreadyAllocated        Code = "value-already-allocated"
	CodeReservationWithoutMandatory  Code = "reservation-without-mandatory-usage"
	CodeCompartmentNotEnoughEndpoint Code = "compartment-not-enough-endpoints"
	CodeReservationAlreadyUsed       Code = "reservation-already-used"

	// Provider errors
	CodeValueInvalid      Code = "value-invalid"
	CodeValueNotAvailable Code = "value-not-available"

	// State errors
	CodeRequestAlreadyModified Code = "request-already-modified"
	CodeRequestDeleted         Code = "request-deleted"
	CodeRequestNotModifiable   Code = "request-not-modifiable"
	CodeRequestNotDeletable    Code = "request-not-deletable"
	CodeRequestNotRevertible   Code = "request-not-revertible"
	CodeRequestNotReusable     Code = "request-not-reusable"
	CodeRequestNotAllocatable  Code = "request-not-allocatable"

	// Authorization errors
	CodeNotAuthorized Code = "not-authorized"
)

var codeKinds = map[Code]Kind{
	CodeSpecificationInvalid:        KindSpecification,
	CodeSpecificationNotAllocatable: KindSpecification,
	CodeSlotEmpty:                   KindSpecification,
	CodeSlotInPast:                  KindSpecification,
	CodeResourceNotFound:            KindSpecification,
	CodeResourceMultipleRequested:   KindSpecification,
	CodeResourceNotEndpoint:         KindSpecification,
	CodeReusedSlotInvalid:           KindSpecification,

	CodeResourceNotAllocatable:       KindCapacity,
	CodeResourceAlreadyAllocated:     KindCapacity,
	CodeRoomCapacityExceeded:         KindCapacity,
	CodeRoomSingleLimitExceeded:      KindCapacity,
	CodeRoomNotAvailable:             KindCapacity,
	CodeAliasNotAvailable:            KindCapacity,
	CodeAliasAlreadyAllocated:        KindCapacity,
	CodeValueAlreadyAllocated:        KindCapacity,
	CodeReservationWithoutMandatory:  KindCapacity,
	CodeCompartmentNotEnoughEndpoint: KindCapacity,
	CodeReservationAlreadyUsed:       KindCapacity,

	CodeValueInvalid:      KindProvider,
	CodeValueNotAvailable: KindProvider,

	CodeRequestAlreadyModified: KindState,
	CodeRequestDeleted:         KindState,
	CodeRequestNotModifiable:   KindState,
	CodeRequestNotDeletable:    KindState,
	CodeRequestNotRevertible:   KindState,
	CodeRequestNotReusable:     KindState,
	CodeRequestNotAllocatable:  KindState,

	CodeNotAuthorized: KindAuthorization,
}

// Kind returns the failure kind of the code, "" for progress codes
func (c Code) Kind() Kind {
	return codeKinds[c]
}

// Report is one node of a structured scheduling report tree
type Report struct {
	Code     Code
	Kind     Kind
	Severity Severity
	Message  string
	Params   map[string]string
	Children []*Report
}

// New creates an error report with the kind derived from code
func New(code Code, format string, args ...interface{}) *Report {
	return &Report{
		Code:     code,
		Kind:     code.Kind(),
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Info creates an informational report, used for task progress
func Info(code Code, format string, args ...interface{}) *Report {
	r := New(code, format, args...)
	r.Severity = SeverityInfo
	return r
}

// Warning creates a warning report
func Warning(code Code, format string, args ...interface{}) *Report {
	r := New(code, format, args...)
	r.Severity = SeverityWarning
	return r
}

// WithParam sets a parameter and returns the report
func (r *Report) WithParam(key, value string) *Report {
	if r.Params == nil {
		r.Params = make(map[string]string)
	}
	r.Params[key] = value
	return r
}

// AddChild appends child reports, ignoring nils
func (r *Report) AddChild(children ...*Report) *Report {
	for _, child := range children {
		if child != nil {
			r.Children = append(r.Children, child)
		}
	}
	return r
}

// Find returns the first report in the tree with code, depth first
func (r *Report) Find(code Code) *Report {
	if r == nil {
		return nil
	}
	if r.Code == code {
		return r
	}
	for _, child := range r.Children {
		if found := child.Find(code); found != nil {
			return found
		}
	}
	return nil
}

// HasSeverity reports whether any node in the tree has severity
func (r *Report) HasSeverity(severity Severity) bool {
	if r == nil {
		return false
	}
	if r.Severity == severity {
		return true
	}
	for _, child := range r.Children {
		if child.HasSeverity(severity) {
			return true
		}
	}
	return false
}

// String renders the tree as indented text for CLI output and logs
func (r *Report) String() string {
	var b strings.Builder
	r.render(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (r *Report) render(b *strings.Builder, depth int) {
	if r == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("-")
	if r.Severity != "" && r.Severity != SeverityInfo {
		fmt.Fprintf(b, " [%s]", r.Severity)
	}
	fmt.Fprintf(b, " %s", r.Message)
	if len(r.Params) > 0 {
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+r.Params[k])
		}
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
	for _, child := range r.Children {
		child.render(b, depth+1)
	}
}

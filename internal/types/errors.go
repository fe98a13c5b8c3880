package types

import (
	"fmt"
	"strings"
)

// ErrorKind is the protocol-visible error taxonomy. Every tool failure is
// mapped to exactly one kind before it crosses the adapter boundary.
type ErrorKind string

const (
	ErrKindMissingEntities     ErrorKind = "MissingEntities"
	ErrKindAlreadyExists       ErrorKind = "AlreadyExists"
	ErrKindNotFound            ErrorKind = "NotFound"
	ErrKindInvalid             ErrorKind = "Invalid"
	ErrKindProviderUnavailable ErrorKind = "ProviderUnavailable"
	ErrKindConflict            ErrorKind = "Conflict"
	ErrKindInternal            ErrorKind = "Internal"
)

// ToolError is the structured failure result of a tool call.
// Success payloads never carry an Error field; a ToolError is never mixed
// into a success payload.
type ToolError struct {
	Kind   ErrorKind `json:"error"`
	Detail string    `json:"detail,omitempty"`

	// Kind-specific fields.
	Names  []string `json:"names,omitempty"`  // MissingEntities
	Name   string   `json:"name,omitempty"`   // AlreadyExists, NotFound
	Field  string   `json:"field,omitempty"`  // Invalid
	Reason string   `json:"reason,omitempty"` // Invalid
}

func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	switch {
	case len(e.Names) > 0:
		fmt.Fprintf(&b, ": %s", strings.Join(e.Names, ", "))
	case e.Name != "":
		fmt.Fprintf(&b, ": %s", e.Name)
	case e.Field != "":
		fmt.Fprintf(&b, ": %s (%s)", e.Field, e.Reason)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// MissingEntitiesError reports entity names that failed reference validation.
func MissingEntitiesError(names []string) *ToolError {
	return &ToolError{
		Kind:   ErrKindMissingEntities,
		Detail: "referenced entities do not exist",
		Names:  names,
	}
}

// AlreadyExistsError reports a name collision.
func AlreadyExistsError(name string) *ToolError {
	return &ToolError{Kind: ErrKindAlreadyExists, Detail: "entity name is taken", Name: name}
}

// NotFoundError reports a single-target operation on a missing record.
func NotFoundError(name string) *ToolError {
	return &ToolError{Kind: ErrKindNotFound, Detail: "entity does not exist", Name: name}
}

// InvalidError reports a validation failure on a named field.
func InvalidError(field, reason string) *ToolError {
	return &ToolError{Kind: ErrKindInvalid, Detail: "validation failed", Field: field, Reason: reason}
}

// ProviderUnavailableError reports an embedding provider failure.
func ProviderUnavailableError(detail string) *ToolError {
	return &ToolError{Kind: ErrKindProviderUnavailable, Detail: detail}
}

// ConflictError reports storage lock contention that outlived the busy
// timeout. The adapter retries these once before surfacing them.
func ConflictError(detail string) *ToolError {
	return &ToolError{Kind: ErrKindConflict, Detail: detail}
}

// InternalError wraps anything the taxonomy does not name. The message is
// kept stable and short; full context goes to the log, not the client.
func InternalError(detail string) *ToolError {
	return &ToolError{Kind: ErrKindInternal, Detail: detail}
}

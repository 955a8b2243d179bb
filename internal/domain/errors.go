package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the boundary can map it without parsing strings.
type Kind string

const (
	KindConfig       Kind = "configuration"
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindCollaborator Kind = "collaborator"
	KindInternal     Kind = "internal"
)

// Error codes surfaced in API error envelopes.
const (
	CodeInvalidConfiguration = "invalid_configuration"
	CodeInvalidChunkSize     = "invalid_chunk_size"
	CodeInvalidChunkOverlap  = "invalid_chunk_overlap"
	CodeInvalidTopK          = "invalid_top_k"
	CodeInvalidRequest       = "invalid_request"
	CodeValidation           = "validation_error"
	CodeEmptyQuery           = "empty_query"
	CodeEmptyDocumentID      = "empty_doc_id"
	CodeDuplicateDocumentID  = "duplicate_doc_id"
	CodeUnsupportedFormat    = "unsupported_format"
	CodeDocumentNotFound     = "document_not_found"
	CodeJobNotFound          = "job_not_found"
	CodeUpstream             = "upstream_error"
	CodeUpstreamTimeout      = "upstream_timeout"
	CodeInternal             = "internal_error"
)

// Sentinels matched through errors.Is by callers that only care about the kind.
var (
	ErrConfig       = &Error{Kind: KindConfig}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrCollaborator = &Error{Kind: KindCollaborator}
)

// Error is the typed error returned by the core.
type Error struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against a bare sentinel such as ErrNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" && t.Op == "" && t.Message == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// ConfigError reports an invalid tuning parameter.
func ConfigError(op, code, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput reports malformed caller input.
func InvalidInput(op, code, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing document or resource.
func NotFound(op, code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CollaboratorError wraps a failure of the embedding, chat or store backend.
func CollaboratorError(op, collaborator string, err error) *Error {
	return &Error{
		Kind:    KindCollaborator,
		Code:    CodeUpstream,
		Op:      op,
		Message: collaborator + " failed",
		Err:     err,
	}
}

package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingAPIKey is returned before any request is made when no
// credential is configured.
var ErrMissingAPIKey = errors.New("missing api key")

// Kind classifies a synthesis failure.
type Kind int

const (
	// KindGeneric covers transport errors, empty responses and any status
	// not handled below.
	KindGeneric Kind = iota
	// KindAuth means the credential was rejected.
	KindAuth
	// KindQuota means the account is out of quota or was flagged. Message
	// holds the provider's explanation.
	KindQuota
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	default:
		return "generic"
	}
}

// Error is a failed synthesis request.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, zero for transport errors
	Message string // provider message, verbatim
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("synthesis failed (")
	sb.WriteString(e.Kind.String())
	sb.WriteString(")")
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": HTTP %d", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

// Statuses in an error detail that mean the account, not the key, is the
// problem.
var quotaStatuses = map[string]bool{
	"quota_exceeded":            true,
	"detected_unusual_activity": true,
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// parseDetail extracts the status and message from an error body. detail is
// either an object or a plain string.
func parseDetail(body []byte) errorDetail {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return errorDetail{}
	}
	var d errorDetail
	if err := json.Unmarshal(eb.Detail, &d); err == nil {
		return d
	}
	var msg string
	if err := json.Unmarshal(eb.Detail, &msg); err == nil {
		return errorDetail{Message: msg}
	}
	return errorDetail{}
}

// classify turns a non-2xx response into an *Error.
func classify(status int, body []byte) *Error {
	d := parseDetail(body)
	switch {
	case status == http.StatusUnauthorized && quotaStatuses[d.Status]:
		return &Error{Kind: KindQuota, Status: status, Message: d.Message}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Status: status, Message: d.Message}
	case status == http.StatusTooManyRequests:
		msg := d.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &Error{Kind: KindQuota, Status: status, Message: msg}
	default:
		return &Error{Kind: KindGeneric, Status: status, Message: d.Message}
	}
}

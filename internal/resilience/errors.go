package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// NotFoundError indicates a submission, form, or owner vanished before
// processing. Raised pre-Lead; aborts the pipeline.
type NotFoundError struct {
	Kind string // "submission", "form", "owner"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// OracleError indicates a failed or unparseable scoring/generation
// response.
type OracleError struct {
	Op  string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// TransportError indicates an email delivery failure. Recorded on the
// Lead's email outcome fields; never aborts the pipeline.
type TransportError struct {
	To  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport to %s: %v", e.To, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConflictError indicates a duplicate Lead write for a submission. The
// storage uniqueness constraint is the deduplication mechanism for
// concurrent pipeline runs, so this is an expected race outcome and the
// orchestrator swallows it.
type ConflictError struct {
	SubmissionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lead already exists for submission %s", e.SubmissionID)
}

// IsNotFound reports whether err chains to a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsOracle reports whether err chains to an OracleError.
func IsOracle(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}

// IsConflict reports whether err chains to a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsTransient returns true if the error (or any error in its chain)
// matches common transient patterns: network timeouts, connection
// resets, DNS failures, provider overload. Only transient errors are
// retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"overloaded_error",
		"rate_limit_error",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

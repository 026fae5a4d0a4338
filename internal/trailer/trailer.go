// Package trailer implements the Trailer Writer: declaring and emitting
// the two HTTP trailers this gateway reports truncation and integrity
// through, "data-truncated" and "checksum".
package trailer

import (
	"net/http"
)

const (
	headerTruncated = "Data-Truncated"
	headerChecksum  = "Checksum"
)

// HeadersAlreadySentError is raised when Declare is called after the
// first body byte has already been written.
type HeadersAlreadySentError struct{}

func (e HeadersAlreadySentError) Error() string {
	return "trailer: declare called after headers were already sent"
}

// TrailerNotDeclaredError is raised when SetDataTruncation is called
// without a prior Declare.
type TrailerNotDeclaredError struct{}

func (e TrailerNotDeclaredError) Error() string {
	return "trailer: setDataTruncation called without a prior declare"
}

// writeTracker is satisfied by responses that can report whether any body
// bytes have been written yet. *trackedResponseWriter (see gateway
// package) implements it; plain http.ResponseWriter values are treated as
// never-yet-written, which is always safe for Declare since it is the
// caller's job to invoke Declare before the first Write.
type writeTracker interface {
	Written() bool
}

// Declare announces the trailers this response may later carry. It must
// be called before the first body byte is written. Fails with
// HeadersAlreadySentError if called afterward.
func Declare(w http.ResponseWriter) error {
	if wt, ok := w.(writeTracker); ok && wt.Written() {
		return HeadersAlreadySentError{}
	}

	h := w.Header()
	h.Add("Trailer", headerTruncated)
	h.Add("Trailer", headerChecksum)
	return nil
}

// RemoveDeclaration undoes Declare. It is idempotent: calling it when no
// declaration exists is a no-op.
func RemoveDeclaration(w http.ResponseWriter) {
	h := w.Header()
	values := h.Values("Trailer")
	if len(values) == 0 {
		return
	}

	h.Del("Trailer")
	for _, v := range values {
		if v != headerTruncated && v != headerChecksum {
			h.Add("Trailer", v)
		}
	}
}

func declared(w http.ResponseWriter) bool {
	for _, v := range w.Header().Values("Trailer") {
		if v == headerTruncated {
			return true
		}
	}
	return false
}

// SetDataTruncation writes the final trailer values. checksum is the hex
// MD5 digest on success, or "" to emit the literal string "null" (spec.md
// §4.1/§8 requires the on-wire checksum value to be the string "null",
// not an empty trailer). Fails with TrailerNotDeclaredError if Declare was
// never called.
func SetDataTruncation(w http.ResponseWriter, truncated bool, checksum string) error {
	if !declared(w) {
		return TrailerNotDeclaredError{}
	}

	checksumValue := "null"
	if checksum != "" {
		checksumValue = checksum
	}

	h := w.Header()
	h.Set(headerTruncated, boolString(truncated))
	h.Set(headerChecksum, checksumValue)
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Package dns provides DNS protocol parsing, encoding, and packet manipulation.
//
// Standards Compliance:
//
// This package implements DNS protocol features from the following RFCs:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 4035: DNSSEC Protocol Extensions (AD, CD flag constants only)
//
// DNSSEC records, EDNS OPT records and negative caching are not handled.
//
// Record Representation:
//
// Every record type is carried by the single generic Record struct; its Data
// field holds a type-specific payload chosen by the record's Type.
//
// Error Handling:
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err).
// This preserves error chains while adding operational context.
package dns

import "errors"

var (
	// ErrDNSError is a sentinel error type for DNS protocol violations.
	// Wrap this with fmt.Errorf("context: %w", ErrDNSError) to add context.
	ErrDNSError = errors.New("dns wire error")

	// ErrTruncated means the buffer ended mid-field.
	ErrTruncated = errors.New("dns: truncated message")
	// ErrBadPointer means a compression pointer formed a loop or pointed out of range.
	ErrBadPointer = errors.New("dns: bad compression pointer")
	// ErrBadLabelLength means a label length byte exceeded 63 without the compression bits set.
	ErrBadLabelLength = errors.New("dns: bad label length")
	// ErrBadUtf8InLabel means a label contained a non-ASCII byte.
	ErrBadUtf8InLabel = errors.New("dns: non-ASCII byte in label")
	// ErrUnsupportedType means the RR type is not one this codec parses.
	ErrUnsupportedType = errors.New("dns: unsupported RR type")
	// ErrUnsupportedClass means the RR class is not IN.
	ErrUnsupportedClass = errors.New("dns: unsupported RR class")
)

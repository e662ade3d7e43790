// Package token sanitizes and validates physical-token payloads (NFC tag
// identifiers, QR contents) before they are compared with a profile's
// registered token.
//
// The pipeline always runs in the same order: trim, sanitize against the
// type's allow-list, then validate length and injection markers. A token that
// fails validation is never compared.
package token

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the capture mechanism a token came from
type Kind string

const (
	KindNFC Kind = "nfc"
	KindQR  Kind = "qr"
)

var (
	ErrEmpty       = errors.New("token is empty")
	ErrTooShort    = errors.New("token is too short")
	ErrTooLong     = errors.New("token is too long")
	ErrInjection   = errors.New("token contains forbidden characters")
	ErrMismatch    = errors.New("token does not match the registered token")
	ErrUnknownKind = errors.New("unknown token kind")
)

// denyChars are characters associated with markup, shell and SQL injection.
// They are checked against the raw input because sanitizing would otherwise
// erase the evidence.
const denyChars = "<>\"'`;\\&|${}"

var denyKeywords = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// Policy describes the allow-list and length bounds for one token kind
type Policy struct {
	Kind       Kind
	MinLength  int
	MaxLength  int
	disallowed *regexp.Regexp
}

var (
	// NFCPolicy accepts tag identifiers such as "04:A2:3B:91" or "abc-123"
	NFCPolicy = Policy{
		Kind:       KindNFC,
		MinLength:  4,
		MaxLength:  64,
		disallowed: regexp.MustCompile(`[^A-Za-z0-9:-]`),
	}

	// QRPolicy accepts identifiers and simple URL-like payloads
	QRPolicy = Policy{
		Kind:       KindQR,
		MinLength:  4,
		MaxLength:  512,
		disallowed: regexp.MustCompile(`[^A-Za-z0-9:._/-]`),
	}
)

// PolicyFor returns the policy for a token kind
func PolicyFor(kind Kind) (Policy, error) {
	switch kind {
	case KindNFC:
		return NFCPolicy, nil
	case KindQR:
		return QRPolicy, nil
	default:
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Sanitize trims whitespace and strips every character outside the allow-list
func (p Policy) Sanitize(raw string) string {
	return p.disallowed.ReplaceAllString(strings.TrimSpace(raw), "")
}

// Validate checks the raw input for injection markers and the sanitized form
// for length bounds
func (p Policy) Validate(raw, sanitized string) error {
	if strings.TrimSpace(raw) == "" || sanitized == "" {
		return ErrEmpty
	}
	if strings.ContainsAny(raw, denyChars) {
		return ErrInjection
	}
	lower := strings.ToLower(raw)
	for _, keyword := range denyKeywords {
		if strings.Contains(lower, keyword) {
			return ErrInjection
		}
	}
	if len(sanitized) < p.MinLength {
		return fmt.Errorf("%w: %d < %d", ErrTooShort, len(sanitized), p.MinLength)
	}
	if len(sanitized) > p.MaxLength {
		return fmt.Errorf("%w: %d > %d", ErrTooLong, len(sanitized), p.MaxLength)
	}
	return nil
}

// Process runs the full pipeline and returns the sanitized token
func (p Policy) Process(raw string) (string, error) {
	sanitized := p.Sanitize(raw)
	if err := p.Validate(raw, sanitized); err != nil {
		return "", err
	}
	return sanitized, nil
}

// Match runs both tokens through the pipeline and compares them exactly
// (case-sensitive)
func (p Policy) Match(provided, registered string) error {
	want, err := p.Process(registered)
	if err != nil {
		return fmt.Errorf("registered token invalid: %w", err)
	}
	got, err := p.Process(provided)
	if err != nil {
		return err
	}
	if got != want {
		return ErrMismatch
	}
	return nil
}

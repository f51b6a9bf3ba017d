// Package qc is the single point of truth for quality-control flag handling.
//
// ARGO QC flags arrive in two encodings: numeric codes 1..9 stored as the
// characters '1'..'9', and single-character grade codes used by some older
// fields. Every flag observed anywhere in the pipeline is parsed into the
// Flag type here and classified by a Policy; no other package branches on
// raw flag bytes.
package qc

import (
	"context"
	"fmt"
)

// Decision is the normalized classification of a flag.
type Decision int

const (
	// Accepted values are retained unconditionally.
	Accepted Decision = iota
	// Review values are retained or dropped per policy, always audited.
	Review
	// Rejected values are always dropped.
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Review:
		return "flagged-for-review"
	default:
		return "rejected"
	}
}

// kind discriminates the two source encodings.
type kind int

const (
	kindNumeric kind = iota
	kindChar
	kindMissing
)

// Flag is a tagged variant holding either a numeric code or a character code.
type Flag struct {
	kind kind
	num  uint8
	char byte
}

// Numeric builds a numeric flag (1..9).
func Numeric(n uint8) Flag { return Flag{kind: kindNumeric, num: n} }

// Char builds a character-code flag.
func Char(c byte) Flag { return Flag{kind: kindChar, char: c} }

// Missing is the flag for an absent or blank QC entry.
func Missing() Flag { return Flag{kind: kindMissing} }

// Parse interprets one raw byte from a QC character array.
// '0'..'9' are numeric codes, ' ' and NUL mean no flag was recorded, and
// anything else is a character code.
func Parse(b byte) Flag {
	switch {
	case b >= '0' && b <= '9':
		return Numeric(b - '0')
	case b == ' ' || b == 0:
		return Missing()
	default:
		return Char(b)
	}
}

// String renders the flag the way it is reported in histograms and artifacts.
func (f Flag) String() string {
	switch f.kind {
	case kindNumeric:
		return fmt.Sprintf("%d", f.num)
	case kindChar:
		return string(rune(f.char))
	default:
		return "missing"
	}
}

// Policy maps flags to decisions. The default favors inclusion with an audit
// trail over silent exclusion: 1 and 2 are accepted, 4 and 9 rejected, and
// everything else (3, 8, blanks, unrecognized character codes) is
// flagged-for-review and retained unless IncludeReview is switched off.
type Policy struct {
	accepted      map[uint8]bool
	rejected      map[uint8]bool
	acceptedChars map[byte]bool
	includeReview bool
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithAcceptedNumeric overrides the numeric codes treated as accepted.
func WithAcceptedNumeric(codes ...uint8) Option {
	return func(p *Policy) {
		p.accepted = make(map[uint8]bool, len(codes))
		for _, c := range codes {
			p.accepted[c] = true
		}
	}
}

// WithRejectedNumeric overrides the numeric codes treated as rejected.
func WithRejectedNumeric(codes ...uint8) Option {
	return func(p *Policy) {
		p.rejected = make(map[uint8]bool, len(codes))
		for _, c := range codes {
			p.rejected[c] = true
		}
	}
}

// WithAcceptedChars marks character codes that are accepted outright
// rather than flagged for review.
func WithAcceptedChars(codes ...byte) Option {
	return func(p *Policy) {
		p.acceptedChars = make(map[byte]bool, len(codes))
		for _, c := range codes {
			p.acceptedChars[c] = true
		}
	}
}

// WithIncludeReview controls whether review-class values are retained.
func WithIncludeReview(include bool) Option {
	return func(p *Policy) {
		p.includeReview = include
	}
}

// NewPolicy builds a Policy with the documented defaults, then applies opts.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		accepted:      map[uint8]bool{1: true, 2: true},
		rejected:      map[uint8]bool{4: true, 9: true},
		acceptedChars: map[byte]bool{},
		includeReview: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate classifies a single flag.
func (p *Policy) Evaluate(ctx context.Context, f Flag) Decision {
	switch f.kind {
	case kindNumeric:
		if p.accepted[f.num] {
			return Accepted
		}
		if p.rejected[f.num] {
			return Rejected
		}
		return Review
	case kindChar:
		if p.acceptedChars[f.char] {
			return Accepted
		}
		return Review
	default:
		return Review
	}
}

// Retain reports whether a value carrying this flag is kept, along with the
// decision that produced the answer.
func (p *Policy) Retain(ctx context.Context, f Flag) (bool, Decision) {
	d := p.Evaluate(ctx, f)
	switch d {
	case Accepted:
		return true, d
	case Review:
		return p.includeReview, d
	default:
		return false, d
	}
}

// IncludesReview reports the configured review-retention behavior.
func (p *Policy) IncludesReview() bool { return p.includeReview }

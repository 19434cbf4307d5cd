package society

import "strings"

// Verdict classifies a critic's review message.
type Verdict int

const (
	// VerdictUnclear means the message carried neither token, or both.
	VerdictUnclear Verdict = iota
	// VerdictApprove means the approve token was present alone.
	VerdictApprove
	// VerdictRevise means the revise token was present alone.
	VerdictRevise
)

func (v Verdict) String() string {
	switch v {
	case VerdictApprove:
		return "approve"
	case VerdictRevise:
		return "revise"
	}
	return "unclear"
}

// ClassifyVerdict inspects raw critic output for the control tokens.
// A message carrying both tokens is ambiguous and is never treated as an
// approval; it counts as a revision round like any unclear verdict.
func ClassifyVerdict(content, approveToken, reviseToken string) Verdict {
	approves := approveToken != "" && strings.Contains(content, approveToken)
	revises := reviseToken != "" && strings.Contains(content, reviseToken)

	switch {
	case approves && revises:
		return VerdictUnclear
	case approves:
		return VerdictApprove
	case revises:
		return VerdictRevise
	default:
		return VerdictUnclear
	}
}

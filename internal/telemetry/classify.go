package telemetry

import "strings"

// ErrorCategory represents the classification of stream faults for telemetry.
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates codec/stream failures (decode errors, format issues)
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the category.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// ClassifyError categorizes a fault from its message and debug detail.
//
// This distinguishes, for operators reading the telemetry:
//   - network issues (the camera or the path to it)
//   - codec issues (stream format problems)
//   - auth issues (credentials needed)
//   - unknown issues (need investigation)
//
// Classification relies on message heuristics: element implementations do
// not expose a structured error domain across the capability boundary.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message) + " " + strings.ToLower(debug)

	// Auth first: most specific keywords.
	if containsAny(combined,
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password", "username",
	) {
		return ErrCategoryAuth
	}

	if containsAny(combined,
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "not negotiated", "no decoder", "missing plugin",
	) {
		return ErrCategoryCodec
	}

	if containsAny(combined,
		"connection", "timeout", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "not found",
		"could not connect", "failed to connect",
	) {
		return ErrCategoryNetwork
	}

	return ErrCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

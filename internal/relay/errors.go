package relay

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Error taxonomy of the relay pipeline.
var (
	// ErrUnknownWebhook means no active source channel matches the path
	// secret. Acknowledged externally with a 200 so probing cannot tell
	// valid secrets from invalid ones; surfaced internally for logging.
	ErrUnknownWebhook = errors.New("unknown webhook secret")

	// ErrMalformedPayload means the request body is not valid JSON.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrUnsupportedContent means content that should have been filtered at
	// ingestion reached the delivery engine.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrChannelMismatch means the post originates from a different channel
	// than the one the webhook is registered for.
	ErrChannelMismatch = errors.New("channel mismatch")
)

// MaxErrorDetailLen bounds the failure detail stored per delivery record.
const MaxErrorDetailLen = 500

// truncateDetail bounds an error string for ledger storage. Raw platform
// response bodies flow into details, so the string is coerced to valid
// UTF-8 and cut on a rune boundary; the ledger column rejects invalid byte
// sequences.
func truncateDetail(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if len(s) <= MaxErrorDetailLen {
		return s
	}
	cut := MaxErrorDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

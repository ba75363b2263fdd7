package stdiorpc

import (
	"github.com/cockroachdb/errors"
)

// Exchange statuses reported to metrics and telemetry.
const (
	RPCStatusOK             = 200
	RPCStatusMalformed      = 400
	RPCStatusRequestTimeout = 408
	RPCStatusChannelClosed  = 410
	RPCStatusTooFrequent    = 429
	RPCStatusPeerError      = 500
)

const (
	DefaultClientName    = "test-client"
	DefaultClientVersion = "1.0.0"
)

// StatusOf maps an exchange error to its status. Peer error objects and
// unclassified failures are RPCStatusPeerError.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return RPCStatusOK
	case errors.Is(err, ErrMalformedResponse):
		return RPCStatusMalformed
	case errors.Is(err, ErrReadTimeout):
		return RPCStatusRequestTimeout
	case errors.Is(err, ErrChannelClosed), errors.Is(err, ErrSessionClosed):
		return RPCStatusChannelClosed
	case errors.Is(err, ErrTooFrequent):
		return RPCStatusTooFrequent
	default:
		return RPCStatusPeerError
	}
}

package stdiorpc

import (
	"time"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
	"github.com/xizhibei/go-stdio-rpc/telemetry"
	"github.com/xizhibei/go-stdio-rpc/transcript"
)

type sessionOptions struct {
	name            string
	readTimeout     time.Duration
	limiterInterval time.Duration
	limiterBurst    int
	logTraffic      bool
	protocolVersion string
	clientInfo      jsonrpc.Implementation
	telemetry       *telemetry.Telemetry
	recorder        *transcript.Recorder
}

// Option is a functional option for configuring a session.
type Option func(o *sessionOptions)

// WithName sets the session name used in logs and metric labels.
// Defaults to a random UUID.
func WithName(name string) Option {
	return func(o *sessionOptions) {
		o.name = name
	}
}

// WithReadTimeout bounds every ReceiveLine call. Zero means no bound beyond ctx.
func WithReadTimeout(d time.Duration) Option {
	return func(o *sessionOptions) {
		o.readTimeout = d
	}
}

// WithLimiter sets the outbound rate: one message per interval with the given burst.
// Default values are 1 second and 5 messages.
func WithLimiter(interval time.Duration, burst int) Option {
	return func(o *sessionOptions) {
		o.limiterInterval = interval
		o.limiterBurst = burst
	}
}

// WithLogTraffic logs every line sent and received at info level.
func WithLogTraffic(logTraffic bool) Option {
	return func(o *sessionOptions) {
		o.logTraffic = logTraffic
	}
}

// WithProtocolVersion overrides the protocol version sent in initialize.
func WithProtocolVersion(version string) Option {
	return func(o *sessionOptions) {
		o.protocolVersion = version
	}
}

// WithClientInfo sets the client identity sent in initialize.
func WithClientInfo(name, version string) Option {
	return func(o *sessionOptions) {
		o.clientInfo = jsonrpc.Implementation{Name: name, Version: version}
	}
}

// WithTelemetry enables spans and exchange metrics.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *sessionOptions) {
		o.telemetry = t
	}
}

// WithTranscript records every line exchanged on the session.
func WithTranscript(rec *transcript.Recorder) Option {
	return func(o *sessionOptions) {
		o.recorder = rec
	}
}

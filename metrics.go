package stdiorpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

// AfterExchangeEvent describes one finished request/response exchange.
// Events are pooled; callbacks must not retain them.
type AfterExchangeEvent struct {
	Method   string
	ID       uint64
	Duration time.Duration
	Status   int
	Res      *jsonrpc.Response
	Err      error
}

// OnAfterExchangeCallback is called after every Call, successful or not.
type OnAfterExchangeCallback func(e *AfterExchangeEvent)

// OnAfterExchange registers cb to run after each exchange.
func (s *Session) OnAfterExchange(cb OnAfterExchangeCallback) {
	s.cbList = append(s.cbList, cb)
}

func (s *Session) emitAfterExchange(e *AfterExchangeEvent) {
	for _, cb := range s.cbList {
		cb(e)
	}
	*e = AfterExchangeEvent{}
	s.afterExchPool.Put(e)
}

// RegisterMetrics observes exchange durations in responseTime and counts failed
// exchanges in errorCount. Both vectors use the labels name, method and status;
// either may be nil.
func (s *Session) RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.GaugeVec) {
	s.OnAfterExchange(func(e *AfterExchangeEvent) {
		labels := prometheus.Labels{
			"name":   s.options.name,
			"method": e.Method,
			"status": strconv.Itoa(e.Status),
		}

		if responseTime != nil {
			responseTime.
				With(labels).
				Observe(e.Duration.Seconds())
		}

		if e.Err != nil && errorCount != nil {
			errorCount.
				With(labels).
				Inc()
		}
	})
}

// NewMetrics returns vectors suitable for RegisterMetrics.
func NewMetrics(namespace string) (*prometheus.HistogramVec, *prometheus.GaugeVec) {
	labels := []string{"name", "method", "status"}

	responseTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exchange_duration_seconds",
		Help:      "Duration of JSON-RPC exchanges with the peer process.",
		Buckets:   prometheus.DefBuckets,
	}, labels)

	errorCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "exchange_errors",
		Help:      "Number of failed JSON-RPC exchanges.",
	}, labels)

	return responseTime, errorCount
}

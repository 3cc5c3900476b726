package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency       = metric.NewHistogram("1m1s")
	RecvPacketPerSecond   = metric.NewCounter("10s1s")
	RecvBytesPerSecond    = metric.NewCounter("10s1s")
	DroppedPerSecond      = metric.NewCounter("10s1s")
	ForwardedPerSecond    = metric.NewCounter("10s1s")
	SegmentsSent          = metric.NewCounter("1m1s")
	SegmentsRetransmitted = metric.NewCounter("1m1s")
	SegmentsAbandoned     = metric.NewCounter("1m1s")
	VectorsSent           = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvnet:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("dvnet:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("dvnet:Dropped/s", DroppedPerSecond)
	expvar.Publish("dvnet:Forwarded/s", ForwardedPerSecond)
	expvar.Publish("dvnet:SegmentsSent", SegmentsSent)
	expvar.Publish("dvnet:SegmentsRetransmitted", SegmentsRetransmitted)
	expvar.Publish("dvnet:SegmentsAbandoned", SegmentsAbandoned)
	expvar.Publish("dvnet:VectorsSent", VectorsSent)
	expvar.Publish("dvnet:DispatchLatency (µs)", DispatchLatency)
}

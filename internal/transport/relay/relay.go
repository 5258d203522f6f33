// Package relay implements the publish-side bus: a second bounded queue
// (spec §4.1's LockedQueue<T> instance between the trigger engine and the
// transport thread, spec §5 "C7 send is blocking on the transport thread,
// never on the worker") plus the dedicated consumer goroutine that drains
// it, publishing over MQTT and falling back to the Payload Spool. This
// keeps the MQTT round trip off the inspection worker's goroutine, the
// way the teacher keeps mqtt-kafka-bridge's incoming/outgoing queues
// (cmd/mqtt-kafka-bridge/queue.go) off its own processing loop.
package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/queue"
	"github.com/edgefleet/inspection-engine/internal/spool"
	"github.com/edgefleet/inspection-engine/internal/transport/mqttchannel"
	"github.com/edgefleet/inspection-engine/internal/types"
)

var droppedTriggersCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "inspection_engine_publish_queue_dropped_total",
	Help: "Total fired triggers dropped because the publish queue was full (spec §4.5 step g, §7 QueueFull).",
})

// Relay owns the bounded publish queue and the goroutine that drains it.
// It implements trigger.PublishSink.
type Relay struct {
	queue   *queue.Bounded[*types.TriggeredCollectionSchemeData]
	channel *mqttchannel.Channel
	spool   *spool.Spool
	logger  *zap.SugaredLogger

	drainInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New constructs a Relay with a publish queue of the given capacity
// (spec §4.1, wired from Config.PublishQueueCapacity).
func New(capacity int, channel *mqttchannel.Channel, sp *spool.Spool, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		queue:         queue.NewBounded[*types.TriggeredCollectionSchemeData](capacity),
		channel:       channel,
		spool:         sp,
		logger:        logger,
		drainInterval: 5 * time.Millisecond,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Enqueue pushes a fired snapshot onto the publish queue without blocking
// the caller (the trigger engine's tick loop). A full queue drops the
// trigger and increments the dropped-trigger counter (spec §4.5 step g),
// returning false so the trigger engine leaves lastTriggerTs/pendingAfter
// untouched and retries on the next eligible tick.
func (r *Relay) Enqueue(data *types.TriggeredCollectionSchemeData) bool {
	if ok := r.queue.Push(data); !ok {
		droppedTriggersCounter.Inc()
		r.logger.Warnw("relay: publish queue full, dropping trigger", "event_id", data.EventID)
		return false
	}
	return true
}

// Run is the dedicated transport consumer goroutine: it owns every
// blocking MQTT round trip (spec §5), so the inspection worker never
// waits on the network. Call it in its own goroutine; Stop ends it.
func (r *Relay) Run() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			r.queue.Drain(r.publishOrSpool)
			return
		default:
		}
		if n := r.queue.Drain(r.publishOrSpool); n == 0 {
			time.Sleep(r.drainInterval)
		}
	}
}

func (r *Relay) publishOrSpool(data *types.TriggeredCollectionSchemeData) {
	err := r.channel.Publish(data)
	if err == nil {
		return
	}
	r.logger.Warnw("relay: publish failed, spooling", "error", err, "event_id", data.EventID)
	r.spool.Enqueue(data, err == mqttchannel.ErrPayloadTooLarge)
}

// Stop signals Run to finish draining and return, then blocks until it
// has.
func (r *Relay) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// QueueDropped returns the publish queue's own cumulative drop count, for
// diagnostics (this mirrors droppedTriggersCounter but is queue-local and
// needs no global registry lookup).
func (r *Relay) QueueDropped() uint64 {
	return r.queue.Dropped()
}

// QueueLen returns the current publish queue depth, for diagnostics.
func (r *Relay) QueueLen() int {
	return r.queue.Len()
}

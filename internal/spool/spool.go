// Package spool implements the Payload Spool (spec §4.8, C8): an on-disk
// priority queue buffering snapshots the MQTT Channel could not publish,
// grounded directly on the teacher's DeleteShiftByIdHandler
// (cmd/mqtt-to-postgresql/processDeleteShiftById.go) and its
// SetupQueue/CloseQueue helpers (queue.go). goque.DESC gives
// priority-descending, FIFO-within-priority dequeue order natively, so
// PassThroughMetadata.Priority maps straight onto the queue's own
// ordering.
package spool

import (
	"fmt"
	"time"

	"github.com/beeker1121/goque"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/serializer"
	"github.com/edgefleet/inspection-engine/internal/types"
)

// Spool persists TriggeredCollectionSchemeData that could not be published
// immediately, retrying through a PublishFunc supplied by the caller.
type Spool struct {
	queue    *goque.PriorityQueue
	logger   *zap.SugaredLogger
	shutdown bool
}

// PublishFunc attempts one publish; it returns an error on any failure,
// including ErrQuotaReached/ErrPayloadTooLarge from mqttchannel.
type PublishFunc func(*types.TriggeredCollectionSchemeData) error

// Open opens (or creates) the on-disk spool at dir.
func Open(dir string, logger *zap.SugaredLogger) (*Spool, error) {
	q, err := goque.OpenPriorityQueue(dir, goque.DESC)
	if err != nil {
		return nil, fmt.Errorf("spool: opening queue at %s: %w", dir, err)
	}
	return &Spool{queue: q, logger: logger}, nil
}

// Enqueue stores data for later retry. Data whose metadata marks it
// non-persistent is dropped immediately rather than spooled (spec §4.8
// "drop when persist == false"); oversized payloads (already rejected by
// mqttchannel as PayloadTooLarge) are never retried either, since a retry
// cannot change their size.
func (s *Spool) Enqueue(data *types.TriggeredCollectionSchemeData, tooLarge bool) {
	if !data.Metadata.Persist || tooLarge {
		return
	}
	payload, err := serializer.Marshal(data)
	if err != nil {
		s.logger.Warnw("spool: failed to marshal for spooling", "error", err)
		return
	}
	priority := priorityByte(data.Metadata.Priority)
	if _, err := s.queue.Enqueue(priority, payload); err != nil {
		s.logger.Warnw("spool: failed to enqueue", "error", err)
	}
}

// priorityByte clamps the condition's uint32 priority into goque's uint8
// priority range.
func priorityByte(p uint32) uint8 {
	if p > 255 {
		return 255
	}
	return uint8(p)
}

// ContentKey computes a dedup key for a payload, grounded on the
// teacher's xxh3.Hash-based SendMQTTMessage dedup cache
// (cmd/sensorconnect/mqtt.go).
func ContentKey(payload []byte) uint64 {
	return xxh3.Hash(payload)
}

// dequeue pulls every item sharing the highest available priority off the
// queue, same batch-drain shape as DeleteShiftByIdHandler.dequeue.
func (s *Spool) dequeue() []*goque.PriorityItem {
	if s.queue.Length() == 0 {
		return nil
	}
	item, err := s.queue.Dequeue()
	if err != nil {
		return nil
	}
	items := []*goque.PriorityItem{item}
	for {
		next, err := s.queue.DequeueByPriority(item.Priority)
		if err != nil {
			break
		}
		items = append(items, next)
	}
	return items
}

// Drain attempts to republish, via publish, every spooled item at the
// highest priority currently present, re-enqueuing (at the same priority)
// whatever still fails. Items at lower priorities stay spooled until a
// later call. cmd/edge-agent calls it periodically while the MQTT Channel
// reports itself alive.
func (s *Spool) Drain(publish PublishFunc) {
	items := s.dequeue()
	for _, item := range items {
		data, err := serializer.Unmarshal(item.Value)
		if err != nil {
			s.logger.Warnw("spool: dropping undecodable item", "error", err)
			continue
		}
		if err := publish(data); err != nil {
			if _, reErr := s.queue.Enqueue(item.Priority, item.Value); reErr != nil {
				s.logger.Warnw("spool: failed to re-enqueue after publish failure", "error", reErr)
			}
		}
	}
}

// Length reports the current number of spooled items, for diagnostics.
func (s *Spool) Length() uint64 {
	return s.queue.Length()
}

// ReportLength periodically logs the queue depth, mirroring the teacher's
// reportQueueLength loop (cmd/mqtt-to-postgresql/queue.go), until Close is
// called.
func (s *Spool) ReportLength(interval time.Duration) {
	for !s.shutdown {
		time.Sleep(interval)
		if n := s.queue.Length(); n > 0 {
			s.logger.Debugf("spool: current queue length: %d", n)
		}
	}
}

// Close stops ReportLength and closes the underlying on-disk queue.
func (s *Spool) Close() error {
	s.shutdown = true
	return s.queue.Close()
}

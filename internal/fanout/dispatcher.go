// Package fanout pushes freshly created messages to their receiver's live
// session.
package fanout

import (
	"quickchat/internal/api"
	"quickchat/internal/models"
	"quickchat/internal/presence"
	"quickchat/internal/utils"

	"go.uber.org/zap"
)

// Dispatcher delivers newMessage events. Delivery is best effort: there is no
// retry and no queue, an offline receiver simply reads the message from
// history later.
type Dispatcher struct {
	registry *presence.Registry
	metrics  *utils.MetricsCollector
	log      *zap.SugaredLogger
}

// NewDispatcher wires a dispatcher to the registry. metrics may be nil.
func NewDispatcher(registry *presence.Registry, metrics *utils.MetricsCollector, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		metrics:  metrics,
		log:      log.With("component", "fanout"),
	}
}

// Dispatch pushes msg to its receiver if they are online and reports whether
// the event was queued. Push failures are logged, never returned.
func (d *Dispatcher) Dispatch(msg *models.Message) bool {
	handle, ok := d.registry.Lookup(msg.ReceiverID)
	if !ok {
		d.record(utils.PushOffline)
		return false
	}

	if err := handle.Emit(api.EventNewMessage, msg); err != nil {
		d.log.Warnw("push failed",
			"messageId", msg.ID,
			"receiverId", msg.ReceiverID,
			"error", err,
		)
		d.record(utils.PushFailed)
		return false
	}

	d.log.Debugw("message pushed", "messageId", msg.ID, "receiverId", msg.ReceiverID)
	d.record(utils.PushDelivered)
	return true
}

func (d *Dispatcher) record(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordPush(outcome)
	}
}

// Package server schedules grace-period eviction of disconnected
// participants, giving the same logical user time to rejoin with a fresh
// connection before their room membership is dropped.
package server

import (
	"time"

	"go.uber.org/zap"
)

// ScheduleEviction arranges for connID's room membership to be re-examined
// after the grace period. There is no cancellation: a rejoin in the interim
// replaces the stored connection handle, so the fired check simply finds
// nothing left to evict.
func (r *Relay) ScheduleEviction(connID string) {
	r.logger.Debug("eviction scheduled",
		zap.String("conn_id", connID),
		zap.Duration("grace_period", r.grace),
	)
	time.AfterFunc(r.grace, func() {
		r.evict(connID)
	})
}

// evict removes connID's participant if, at fire time, the connection is
// still the one registered and it is still closed. State is re-resolved from
// the registry here rather than captured at schedule time: the room may have
// been deleted, recreated under the same code, or the participant replaced
// by a rejoin since the disconnect.
func (r *Relay) evict(connID string) {
	roomID, p, ok := r.registry.FindByConn(connID)
	if !ok {
		// Already removed, or the participant rejoined under a new
		// connection ID.
		r.logger.Debug("eviction no-op", zap.String("conn_id", connID))
		return
	}

	if p.Conn.Open() {
		// The same connection came back to life; leave membership alone.
		r.logger.Debug("eviction skipped, connection open",
			zap.String("conn_id", connID),
			zap.String("room_id", roomID),
		)
		return
	}

	// The sweep covers every room the connection occupies, so one fired
	// timer cannot leave a ghost membership behind in a second room.
	for _, removal := range r.registry.RemoveParticipant(connID) {
		r.logger.Info("participant evicted",
			zap.String("conn_id", connID),
			zap.String("room_id", removal.RoomID),
			zap.String("username", removal.Name),
			zap.Bool("room_deleted", removal.RoomDeleted),
		)

		if !removal.RoomDeleted {
			r.registry.Broadcast(removal.RoomID, chatMessage(removal.Name+" left the room", time.Now()), "")
		}
	}
}

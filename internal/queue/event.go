// Package queue carries scan.awarded events to RabbitMQ or Kafka and
// consumes them into the award log.
package queue

// ScanAwardedQueue is the queue (AMQP) and default topic (Kafka) name.
const ScanAwardedQueue = "scan.awarded"

// ScanAwardedEvent is published after a scan credited a member.  It is
// sent after commit, so a consumer never sees an award that was rolled
// back; delivery itself is best effort.
type ScanAwardedEvent struct {
	EventID   string  `json:"event_id"`
	UserID    uint64  `json:"user_id"`
	ScannerID *uint64 `json:"scanner_id,omitempty"`
	TokenID   string  `json:"token_id"`
	AwardDate string  `json:"award_date"`
	Delta     int64   `json:"delta"`
	Balance   int64   `json:"balance"`
	AwardedAt string  `json:"awarded_at"`
}

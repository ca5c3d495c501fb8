package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Transport events. Published by the active transport, consumed by the sync engine.
const (
	KindTransportPrefix = "wa."

	KindQR       = "wa.qr"
	KindStatus   = "wa.status"
	KindContacts = "wa.contacts"
	KindMessage  = "wa.message"
	KindQueueLog = "wa.queue_log"
	KindClosed   = "wa.closed"
	KindFailed   = "wa.failed"
)

// Orchestrator events. Published for operators (SSE, health, CLI).
const (
	KindStatusChanged  = "session.status_changed"
	KindResetting      = "session.resetting"
	KindContactsSynced = "contacts.synced"
	KindSyncTimeout    = "contacts.sync_timeout"
	KindAppended       = "message.appended"
	KindSendAck        = "message.send_ack"
	KindSendFailed     = "message.send_failed"
	KindDispatched     = "campaign.dispatched"
	KindTxLogUpdated   = "txlog.updated"
	KindSettings       = "settings.changed"
)

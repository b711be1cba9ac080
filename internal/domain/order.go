package domain

import "time"

// Status is the order's position in the processing pipeline.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusQueued          Status = "QUEUED"
	StatusProcessing      Status = "PROCESSING"
	StatusCMSCalling      Status = "CMS_CALLING"
	StatusCMSOK           Status = "CMS_OK"
	StatusCMSError        Status = "CMS_ERROR"
	StatusROSCalling      Status = "ROS_CALLING"
	StatusROSOK           Status = "ROS_OK"
	StatusROSError        Status = "ROS_ERROR"
	StatusWMSCalling      Status = "WMS_CALLING"
	StatusWMSOK           Status = "WMS_OK"
	StatusWMSError        Status = "WMS_ERROR"
	StatusFailed          Status = "FAILED"
	StatusReadyForDriver  Status = "READY_FOR_DRIVER"
	StatusDLQ             Status = "DLQ"
	StatusDelivered       Status = "DELIVERED" // produced out-of-scope by the driver flow
)

// DoneStatuses is the skip-gate set: a message whose order already sits in
// one of these must not be reprocessed.
var DoneStatuses = map[Status]bool{
	StatusReadyForDriver: true,
	StatusDLQ:            true,
	StatusDelivered:      true,
	StatusFailed:         true,
}

func (s Status) Done() bool { return DoneStatuses[s] }

// Order is the durable record of a single client submission as it moves
// through CMS -> ROS -> WMS.
type Order struct {
	ID                string
	ClientID          string
	Payload           map[string]any
	Status            Status
	RetryCount        int
	LastError         string
	LastEventID       string
	AssignedDriverID  *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EventLogEntry is one append-only audit row.
type EventLogEntry struct {
	ID        int64
	OrderID   string
	EventType string
	Details   map[string]any
	CreatedAt time.Time
}

// OutboxRow mirrors an unpublished domain event written in the same
// transaction as the order mutation that produced it. Presence of the row
// is the only "pending" marker; there is no status column.
type OutboxRow struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Envelope is the decoded broker message body: {order_id, event_id,
// aggregate_type, payload}. event_id equals the originating outbox row id
// and is the idempotency key for the whole pipeline run.
type Envelope struct {
	OrderID       string          `json:"order_id"`
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       map[string]any  `json:"payload"`
}

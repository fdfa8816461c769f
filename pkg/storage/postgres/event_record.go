package postgres

import "time"

// EventRecord is one monitoring event persisted for the aggregator.
type EventRecord struct {
	ID uint `gorm:"primaryKey"`

	EventID  string `gorm:"type:uuid;not null;uniqueIndex:idx_event_id"`
	Category string `gorm:"type:varchar(16);not null;index:idx_event_category_ts"`
	Action   string `gorm:"type:text;not null"`
	TraceID  string `gorm:"type:text"`

	Success    bool  `gorm:"not null"`
	StatusCode int   `gorm:"not null;default:0"`
	DurationMs int64 `gorm:"not null;default:0"`

	Attributes map[string]interface{} `gorm:"type:jsonb;serializer:json"`

	Timestamp time.Time `gorm:"not null;index:idx_event_category_ts;index:idx_event_timestamp"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (EventRecord) TableName() string {
	return "monitoring_event"
}

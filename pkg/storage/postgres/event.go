package postgres

import (
	"context"
	"fmt"
	"time"

	"stocksim/internal/monitor"

	"gorm.io/gorm/clause"
)

// EventLog adapts the client to monitor.EventLog.
type EventLog struct {
	client *PostgresClient
}

func NewEventLog(client *PostgresClient) *EventLog {
	return &EventLog{client: client}
}

func (l *EventLog) Append(ctx context.Context, e monitor.Event) error {
	return l.client.InsertEvent(ctx, ToEventRecord(e))
}

func (l *EventLog) Since(ctx context.Context, since time.Time) ([]monitor.Event, error) {
	records, err := l.client.EventsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]monitor.Event, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToEvent())
	}
	return out, nil
}

func (p *PostgresClient) InsertEvent(ctx context.Context, record *EventRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return fmt.Errorf("insert event %s: %w", record.Action, tx.Error)
	}
	return nil
}

func (p *PostgresClient) EventsSince(ctx context.Context, since time.Time) ([]EventRecord, error) {
	var records []EventRecord
	err := p.DB.WithContext(ctx).
		Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteOldEvents drops everything older than before. Run it with a cutoff
// past the longest aggregation window.
func (p *PostgresClient) DeleteOldEvents(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&EventRecord{})
	return tx.RowsAffected, tx.Error
}

// ToEventRecord converts a monitoring event into an EventRecord for DB insertion.
func ToEventRecord(e monitor.Event) *EventRecord {
	return &EventRecord{
		EventID:    e.ID,
		Category:   string(e.Category),
		Action:     e.Action,
		TraceID:    e.TraceID,
		Success:    e.Success,
		StatusCode: e.StatusCode,
		DurationMs: e.Duration.Milliseconds(),
		Attributes: e.Attributes,
		Timestamp:  e.Timestamp.UTC(),
	}
}

func (r EventRecord) ToEvent() monitor.Event {
	return monitor.Event{
		ID:         r.EventID,
		Category:   monitor.Category(r.Category),
		Action:     r.Action,
		TraceID:    r.TraceID,
		Timestamp:  r.Timestamp,
		Success:    r.Success,
		StatusCode: r.StatusCode,
		Duration:   time.Duration(r.DurationMs) * time.Millisecond,
		Attributes: r.Attributes,
	}
}

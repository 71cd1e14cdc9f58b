package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"gamebridge/internal/channel"
)

const (
	journalQueueSize     = 10000
	journalBatchSize     = 100
	journalFlushInterval = time.Second
)

// SessionRecord is one row per channel session.
type SessionRecord struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	Role          string     `gorm:"size:16;not null" json:"role"`
	Endpoint      string     `gorm:"size:255;not null" json:"endpoint"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	FramesIn      int64      `json:"frames_in"`
	FramesOut     int64      `json:"frames_out"`
	FramesDropped int64      `json:"frames_dropped"`
	EndReason     string     `gorm:"size:512" json:"end_reason,omitempty"`
}

func (SessionRecord) TableName() string { return "channel_sessions" }

// MessageRecord is one archived inbound frame.
type MessageRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"type:uuid;index;not null"`
	Command    string    `gorm:"size:128"`
	ReceivedAt time.Time `gorm:"not null"`
	Payload    string    `gorm:"type:jsonb;not null"`
}

func (MessageRecord) TableName() string { return "channel_messages" }

var messageColumns = []string{"session_id", "command", "received_at", "payload"}

// Copier is the bulk-insert half of *pgxpool.Pool.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Journal records session lifecycle through GORM and archives inbound frames
// in batches with COPY. Either backend may be nil.
type Journal struct {
	db     *gorm.DB
	copier Copier
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex // Start and Close change state under the write lock
	queue   chan MessageRecord
	stop    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	dropped atomic.Int64
}

func NewJournal(db *gorm.DB, copier Copier, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:            db,
		copier:        copier,
		logger:        logger,
		batchSize:     journalBatchSize,
		flushInterval: journalFlushInterval,
		queue:         make(chan MessageRecord, journalQueueSize),
		stop:          make(chan struct{}),
	}
}

// Migrate creates the journal tables.
func (j *Journal) Migrate(ctx context.Context) error {
	if j == nil || j.db == nil {
		return nil
	}
	if err := j.db.WithContext(ctx).AutoMigrate(&SessionRecord{}, &MessageRecord{}); err != nil {
		return fmt.Errorf("failed to migrate journal tables: %w", err)
	}
	return nil
}

func (j *Journal) SessionStarted(role, endpoint string, s *channel.Session) {
	if j == nil || j.db == nil {
		return
	}
	stats := s.Stats()
	rec := SessionRecord{
		ID:        s.ID,
		Role:      role,
		Endpoint:  endpoint,
		StartedAt: stats.StartedAt,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		j.logger.Error("journal_session_insert_failed", "session_id", s.ID, "error", err)
	}
}

func (j *Journal) SessionEnded(role, endpoint string, s *channel.Session) {
	if j == nil || j.db == nil {
		return
	}
	stats := s.Stats()
	now := time.Now()
	updates := map[string]any{
		"ended_at":       &now,
		"frames_in":      stats.FramesIn,
		"frames_out":     stats.FramesOut,
		"frames_dropped": stats.FramesDropped,
		"end_reason":     endReason(s.Err()),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res := j.db.WithContext(ctx).Model(&SessionRecord{}).Where("id = ?", s.ID).Updates(updates)
	if res.Error != nil {
		j.logger.Error("journal_session_update_failed", "session_id", s.ID, "error", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		j.logger.Warn("journal_session_missing", "session_id", s.ID)
	}
}

func endReason(err error) string {
	switch {
	case err == nil:
		return "stopped"
	case errors.Is(err, channel.ErrBrokenChannel):
		return "broken: " + err.Error()
	default:
		return err.Error()
	}
}

// HandleMessage queues the frame for the archive; it never blocks.
func (j *Journal) HandleMessage(sessionID string, msg channel.Message) {
	if j == nil || j.copier == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		j.dropped.Add(1)
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		j.dropped.Add(1)
		return
	}
	rec := MessageRecord{
		SessionID:  sessionID,
		Command:    msg.Command(),
		ReceivedAt: time.Now().UTC(),
		Payload:    string(payload),
	}
	select {
	case j.queue <- rec:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal_queue_full", "session_id", sessionID)
	}
}

// Dropped counts frames that never reached the archive queue, including
// those handed over after Close.
func (j *Journal) Dropped() int64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Start launches the batch writer.
func (j *Journal) Start() {
	if j == nil || j.copier == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed.Load() || !j.started.CompareAndSwap(false, true) {
		return
	}
	j.wg.Add(1)
	go j.batchWriter()
}

func (j *Journal) batchWriter() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]MessageRecord, 0, j.batchSize)
	j.logger.Info("batch_writer_started", "interval", j.flushInterval, "batch_size", j.batchSize)

	for {
		select {
		case <-j.stop:
			for {
				select {
				case rec := <-j.queue:
					batch = append(batch, rec)
					if len(batch) >= j.batchSize {
						j.flushBatch(batch)
						batch = batch[:0]
					}
				default:
					j.logger.Info("batch_writer_shutting_down", "remaining", len(batch))
					if len(batch) > 0 {
						j.flushBatch(batch)
					}
					return
				}
			}

		case rec := <-j.queue:
			batch = append(batch, rec)
			if len(batch) >= j.batchSize {
				j.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				j.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flushBatch(batch []MessageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows := make([][]any, len(batch))
	for i, rec := range batch {
		rows[i] = []any{rec.SessionID, rec.Command, rec.ReceivedAt, rec.Payload}
	}

	start := time.Now()
	n, err := j.copier.CopyFrom(ctx, pgx.Identifier{MessageRecord{}.TableName()}, messageColumns, pgx.CopyFromRows(rows))
	if err != nil {
		j.logger.Error("batch_insert_failed", "count", len(batch), "error", err)
		return
	}
	j.logger.Debug("batch_insert_success",
		"count", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Close flushes the pending batch and stops the writer. The database
// handles are owned by the caller.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if !j.closed.CompareAndSwap(false, true) {
		j.mu.Unlock()
		return nil
	}
	j.mu.Unlock()

	close(j.stop)
	j.wg.Wait()
	if !j.started.Load() {
		j.dropped.Add(int64(len(j.queue)))
	}
	return nil
}

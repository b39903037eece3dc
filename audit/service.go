package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/gen1sim/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// AuditEntry holds one seat or admin action to be logged.
type AuditEntry struct {
	TraceID    string
	MatchID    string
	Seat       string
	Action     string
	Request    interface{}
	Error      string
	IP         string
	Turn       int
	DurationMs int
}

// Service writes audit entries and finished battles asynchronously in
// batches.
type Service struct {
	db      *gorm.DB
	ch      chan *model.AuditLog
	records chan *model.BattleRecord
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:      db,
		ch:      make(chan *model.AuditLog, 1024),
		records: make(chan *model.BattleRecord, 256),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. Entries are dropped when
// the queue is full.
func (svc *Service) Log(entry AuditEntry) {
	reqJSON, _ := json.Marshal(entry.Request)
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		MatchID:    entry.MatchID,
		Seat:       entry.Seat,
		Action:     entry.Action,
		Request:    datatypes.JSON(reqJSON),
		Error:      entry.Error,
		IP:         entry.IP,
		Turn:       entry.Turn,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("match_id", entry.MatchID))
	}
}

// Record enqueues a finished battle. Unlike audit entries a record is never
// dropped: when the queue is full it is written synchronously.
func (svc *Service) Record(rec *model.BattleRecord) {
	select {
	case <-svc.stopCh:
		svc.writeRecords([]*model.BattleRecord{rec})
		return
	default:
	}
	select {
	case svc.records <- rec:
	default:
		svc.writeRecords([]*model.BattleRecord{rec})
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

// writeRecords upserts by match id so a record written twice keeps the
// latest version.
func (svc *Service) writeRecords(recs []*model.BattleRecord) {
	err := svc.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}},
		UpdateAll: true,
	}).Create(&recs).Error
	if err != nil {
		svc.logger.Error("battle record write failed", zap.Int("count", len(recs)), zap.Error(err))
	}
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)
	recs := make([]*model.BattleRecord, 0, batchSize)

	flush := func() {
		if len(batch) > 0 {
			if err := svc.db.Create(&batch).Error; err != nil {
				svc.logger.Error("audit batch write failed", zap.Error(err))
			}
			batch = batch[:0]
		}
		if len(recs) > 0 {
			svc.writeRecords(recs)
			recs = recs[:0]
		}
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case rec := <-svc.records:
			recs = append(recs, rec)
			if len(recs) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				case rec := <-svc.records:
					recs = append(recs, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

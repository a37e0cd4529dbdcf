// Package journal persists cycle reports and ledger transitions.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type CycleRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Strategy      string `gorm:"type:text;index;not null"`
	Tick          int
	StartedAt     time.Time `gorm:"index"`
	DurationMs    int64
	BasketRich    decimal.NullDecimal `gorm:"type:numeric(20,10)"`
	CompositeRich decimal.NullDecimal `gorm:"type:numeric(20,10)"`
	Skipped       string              `gorm:"type:text"`
	Errors        string              `gorm:"type:text"`
	Trades        []TradeRecord       `gorm:"foreignKey:CycleID"`
}

func (CycleRecord) TableName() string {
	return "cycles"
}

type TradeRecord struct {
	ID        uint   `gorm:"primaryKey"`
	CycleID   uint   `gorm:"index;not null"`
	Ticker    string `gorm:"type:text;not null"`
	Side      string `gorm:"type:text;not null"`
	Requested int
	Sized     int
	Filled    int
	Note      string `gorm:"type:text"`
}

func (TradeRecord) TableName() string {
	return "cycle_trades"
}

type PositionEvent struct {
	ID         uint   `gorm:"primaryKey"`
	CycleID    uint   `gorm:"index;not null"`
	PositionID string `gorm:"type:text;index;not null"`
	Event      string `gorm:"type:text;not null"`
	Tick       int
	CreatedAt  time.Time
}

func (PositionEvent) TableName() string {
	return "position_events"
}

const (
	EventOpened  = "opened"
	EventClosing = "closing"
	EventClosed  = "closed"
)

type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to dsn and migrates the schema. postgres:// URLs use the
// postgres driver; anything else is a sqlite path.
func Open(dsn string, logger *logrus.Logger) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&CycleRecord{}, &TradeRecord{}, &PositionEvent{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	logger.WithField("driver", dialector.Name()).Info("Journal opened")
	return &Store{db: db, logger: logger}, nil
}

// RecordCycle stores one cycle, its trades and its ledger transitions in a
// single transaction.
func (s *Store) RecordCycle(ctx context.Context, report models.CycleReport) error {
	rec := CycleRecord{
		Strategy:   report.Strategy,
		Tick:       report.Tick,
		StartedAt:  report.StartedAt,
		DurationMs: report.Duration.Milliseconds(),
		Skipped:    report.Skipped,
		Errors:     strings.Join(report.Errors, "; "),
	}
	if report.Edges != nil {
		rec.BasketRich = decimal.NewNullDecimal(report.Edges.BasketRich)
		rec.CompositeRich = decimal.NewNullDecimal(report.Edges.CompositeRich)
	}
	for _, t := range report.SizedTrades {
		rec.Trades = append(rec.Trades, TradeRecord{
			Ticker:    t.Ticker,
			Side:      string(t.Side),
			Requested: t.Requested,
			Sized:     t.Sized,
			Filled:    t.Filled,
			Note:      t.Note,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
		var events []PositionEvent
		add := func(event string, ids []string) {
			for _, id := range ids {
				events = append(events, PositionEvent{CycleID: rec.ID, PositionID: id, Event: event, Tick: report.Tick})
			}
		}
		add(EventOpened, report.LedgerDelta.Opened)
		add(EventClosing, report.LedgerDelta.Closing)
		add(EventClosed, report.LedgerDelta.Closed)
		if len(events) == 0 {
			return nil
		}
		if err := tx.Create(&events).Error; err != nil {
			return fmt.Errorf("insert position events: %w", err)
		}
		return nil
	})
}

// RecentCycles returns up to limit cycles, newest first, with their trades.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	var out []CycleRecord
	err := s.db.WithContext(ctx).
		Preload("Trades").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PositionHistory returns the transitions of one position in order.
func (s *Store) PositionHistory(ctx context.Context, positionID string) ([]PositionEvent, error) {
	var out []PositionEvent
	err := s.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

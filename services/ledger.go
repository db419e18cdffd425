// services/ledger.go
package services

import (
	"context"
	"fmt"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/store"
)

// DefaultLedgerMaxRecords bounds the stored history of one feature.
const DefaultLedgerMaxRecords = 1000

// ClaimLedger is the append-only record of completed claims for one feature.
// Appends are staged as mutations and committed by the caller.
type ClaimLedger struct {
	Store      store.Store
	Window     CalendarWindow
	Key        string
	MaxRecords int
}

func NewClaimLedger(s store.Store, window CalendarWindow, key string, maxRecords int) *ClaimLedger {
	if maxRecords <= 0 {
		maxRecords = DefaultLedgerMaxRecords
	}
	return &ClaimLedger{Store: s, Window: window, Key: key, MaxRecords: maxRecords}
}

func (l *ClaimLedger) Records(ctx context.Context) ([]models.ClaimRecord, error) {
	var records []models.ClaimRecord
	if _, err := store.GetJSON(ctx, l.Store, l.Key, &records); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return records, nil
}

// StageAppend fills in rec.Streak and returns the mutation that appends it.
func (l *ClaimLedger) StageAppend(ctx context.Context, rec models.ClaimRecord) (models.ClaimRecord, store.Mutation, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return rec, store.Mutation{}, err
	}
	var prev *models.ClaimRecord
	if len(records) > 0 {
		prev = &records[len(records)-1]
	}
	rec.Streak = NextStreak(l.Window, prev, rec.WindowKey)

	records = append(records, rec)
	if len(records) > l.MaxRecords {
		records = records[len(records)-l.MaxRecords:]
	}
	m, err := store.PutJSON(l.Key, records)
	return rec, m, err
}

// Streak returns the live streak and the number of stored records. The
// streak of the latest record is live while its window is the current or
// the immediately preceding one.
func (l *ClaimLedger) Streak(ctx context.Context, now time.Time) (streak, total int, err error) {
	records, err := l.Records(ctx)
	if err != nil || len(records) == 0 {
		return 0, 0, err
	}
	last := records[len(records)-1]
	key := l.Window.Key(now)
	if last.WindowKey == key || l.Window.Precedes(last.WindowKey, key) {
		return last.Streak, len(records), nil
	}
	return 0, len(records), nil
}

func (l *ClaimLedger) Reset(ctx context.Context) error {
	return l.Store.Remove(ctx, l.Key)
}

// NextStreak counts consecutive windows with at least one claim. Another
// claim in the same window keeps the streak; a gap restarts it at 1.
func NextStreak(window CalendarWindow, prev *models.ClaimRecord, windowKey string) int {
	switch {
	case prev == nil:
		return 1
	case prev.WindowKey == windowKey:
		return max(prev.Streak, 1)
	case window.Precedes(prev.WindowKey, windowKey):
		return prev.Streak + 1
	default:
		return 1
	}
}

// workers/ledger_archive_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"game-rewards-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// LedgerSource exposes the claim ledgers of one installation.
type LedgerSource interface {
	Ledgers(ctx context.Context) (map[string][]models.ClaimRecord, error)
	KeyPrefix() string
}

// Uploader stores an archive object.
type Uploader interface {
	PutJSON(ctx context.Context, key string, body []byte) error
}

// LedgerSnapshot is the archived document.
type LedgerSnapshot struct {
	KeyPrefix string                          `json:"key_prefix"`
	TakenAt   time.Time                       `json:"taken_at"`
	Records   int                             `json:"records"`
	Ledgers   map[string][]models.ClaimRecord `json:"ledgers"`
}

// LedgerArchiver copies every feature ledger to object storage.
type LedgerArchiver struct {
	Source   LedgerSource
	Uploader Uploader
	Clock    clockwork.Clock

	lastClaimID string
}

func NewLedgerArchiver(source LedgerSource, uploader Uploader, clock clockwork.Clock) *LedgerArchiver {
	return &LedgerArchiver{Source: source, Uploader: uploader, Clock: clock}
}

// Archive uploads a snapshot and returns its object key. Nothing is
// uploaded when no claim was recorded since the previous snapshot.
func (a *LedgerArchiver) Archive(ctx context.Context) (string, error) {
	ledgers, err := a.Source.Ledgers(ctx)
	if err != nil {
		return "", fmt.Errorf("read ledgers: %w", err)
	}

	total := 0
	var latest models.ClaimRecord
	for _, records := range ledgers {
		total += len(records)
		if n := len(records); n > 0 && records[n-1].Timestamp.After(latest.Timestamp) {
			latest = records[n-1]
		}
	}
	if total == 0 || latest.ClaimID == a.lastClaimID {
		return "", nil
	}

	now := a.Clock.Now().UTC()
	snap := LedgerSnapshot{
		KeyPrefix: a.Source.KeyPrefix(),
		TakenAt:   now,
		Records:   total,
		Ledgers:   ledgers,
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("ledgers/%s/%s.json", snap.KeyPrefix, now.Format("20060102T150405Z"))
	if err := a.Uploader.PutJSON(ctx, key, body); err != nil {
		return "", err
	}
	a.lastClaimID = latest.ClaimID
	log.Info().Str("key", key).Int("records", total).Msg("📦 ledger snapshot archived")
	return key, nil
}

package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"lodging/src/models"
	"strconv"
	"time"
)

type Export struct {
	Key  string `json:"key"`
	URL  string `json:"url,omitempty"`
	Rows int    `json:"rows"`
}

var ErrNoUploader = errors.New("ledger export storage is not configured")

var exportHeader = []string{
	"id", "created_at", "type", "amount", "host_amount", "host_id", "ref_type", "ref_id", "transaction_id", "note",
}

// Export writes the entries matching q as CSV and uploads the file.
func (l *Ledger) Export(ctx context.Context, hostID uint, q Query) (*Export, error) {
	if l.uploader == nil {
		return nil, ErrNoUploader
	}
	entries, err := l.Query(ctx, hostID, q)
	if err != nil {
		return nil, err
	}
	body, err := WriteCSV(entries)
	if err != nil {
		return nil, err
	}
	stamp := l.now().UTC().Format("20060102T150405.000000000")
	key := fmt.Sprintf("ledger/%s.csv", stamp)
	if hostID != 0 {
		key = fmt.Sprintf("ledger/host-%d/%s.csv", hostID, stamp)
	}
	url, err := l.uploader.Upload(ctx, key, body, "text/csv")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	return &Export{Key: key, URL: url, Rows: len(entries)}, nil
}

func WriteCSV(entries []models.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	for _, e := range entries {
		host := ""
		if e.HostID != nil {
			host = strconv.FormatUint(uint64(*e.HostID), 10)
		}
		txn := ""
		if e.TransactionID != nil {
			txn = *e.TransactionID
		}
		ref := ""
		if e.RefID != 0 {
			ref = strconv.FormatUint(uint64(e.RefID), 10)
		}
		row := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Type),
			e.Amount.StringFixed(2),
			e.HostAmount.StringFixed(2),
			host,
			string(e.RefType),
			ref,
			txn,
			e.Note,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

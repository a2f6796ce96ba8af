package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/posting"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// JournalEntry is one archived posting payload.
type JournalEntry struct {
	ID                id.ID           `db:"id"`
	ReferenceType     string          `db:"reference_type"`
	ReferenceID       id.ID           `db:"reference_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// JournalStore archives posted document payloads. Large payloads (bulk
// receipts) are zstd-compressed; small ones stay as plain jsonb for ad-hoc
// querying.
type JournalStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewJournalStore creates a new posting journal store.
func NewJournalStore(txManager *TxManager) (*JournalStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &JournalStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Archive stores a posted document payload. Called inside the posting
// transaction so the archive commits with the ledger rows.
func (s *JournalStore) Archive(ctx context.Context, refType string, refID id.ID, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	entry := JournalEntry{
		ID:              id.New(),
		ReferenceType:   refType,
		ReferenceID:     refID,
		Payload:         payloadJSON,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}
	if len(payloadJSON) > s.compressThreshold {
		entry.PayloadCompressed = s.encoder.EncodeAll(payloadJSON, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO posting_journal (
			id, reference_type, reference_id,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.ReferenceType, entry.ReferenceID,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	return err
}

// GetByReference retrieves archived payloads for a document, newest first,
// decompressing as needed.
func (s *JournalStore) GetByReference(ctx context.Context, refType string, refID id.ID, limit int) ([]JournalEntry, error) {
	sql := `
		SELECT id, reference_type, reference_id,
		       payload, payload_compressed, compression_algo, created_at
		FROM posting_journal
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, refType, refID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		err := rows.Scan(
			&e.ID, &e.ReferenceType, &e.ReferenceID,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Ensure interface compliance.
var _ posting.Journal = (*JournalStore)(nil)

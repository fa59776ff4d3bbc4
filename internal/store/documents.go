package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MaxDocumentBytes caps uploaded PDFs (protect DB).
const MaxDocumentBytes = 10 << 20

var ErrNotPDF = fmt.Errorf("%w: document is not a PDF", ErrInvalid)

func DocumentKey(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// DocumentURL is the path the API serves a stored document from.
func DocumentURL(key string) string {
	if key == "" {
		return ""
	}
	return "/documents/" + key
}

// PutDocument stores a PDF keyed by its content hash and returns the key.
// Storing the same bytes twice is a no-op.
func PutDocument(ctx context.Context, db *sql.DB, b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if len(b) > MaxDocumentBytes {
		return "", fmt.Errorf("%w: document too large: %d bytes", ErrInvalid, len(b))
	}
	ct := http.DetectContentType(b)
	if !strings.HasPrefix(ct, "application/pdf") {
		return "", ErrNotPDF
	}

	key := DocumentKey(b)
	_, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO documents(key, content_type, bytes, stored_at)
VALUES(?,?,?,?);`,
		key, ct, b, now(),
	)
	if err != nil {
		return "", fmt.Errorf("put document: %w", err)
	}
	return key, nil
}

func GetDocument(ctx context.Context, db *sql.DB, key string) (contentType string, b []byte, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT content_type, bytes FROM documents WHERE key = ? LIMIT 1;`, key,
	).Scan(&contentType, &b)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	return contentType, b, err
}

// Package cursor implements the opaque base64 pagination cursor used by the
// inbox read path (C10, §4.10): base64 of `{createdAt ISO, id}`.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
)

type wireCursor struct {
	CreatedAt string `json:"createdAt"`
	ID        string `json:"id"`
}

// Encode serializes a Cursor into the opaque string returned to clients.
func Encode(c repository.Cursor) string {
	w := wireCursor{CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano), ID: c.ID.String()}
	b, _ := json.Marshal(w)
	return base64.URLEncoding.EncodeToString(b)
}

// Decode parses an opaque cursor string back into its fields.
func Decode(s string) (repository.Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return repository.Cursor{}, fmt.Errorf("cursor: invalid encoding: %w", err)
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil {
		return repository.Cursor{}, fmt.Errorf("cursor: invalid payload: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return repository.Cursor{}, fmt.Errorf("cursor: invalid createdAt: %w", err)
	}
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return repository.Cursor{}, fmt.Errorf("cursor: invalid id: %w", err)
	}
	return repository.Cursor{CreatedAt: createdAt, ID: id}, nil
}

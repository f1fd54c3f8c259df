package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load when no record is stored.
	ErrNotFound = errors.New("persisted record not found")
	// ErrCorrupt is returned by Load when the stored payload cannot be decoded.
	ErrCorrupt = errors.New("persisted record corrupt")
	// ErrUnavailable wraps backend failures (I/O, network) in Save, Load and Remove.
	ErrUnavailable = errors.New("persistence backend unavailable")
)

// Record is the display subset of the signed-in user.
type Record struct {
	ID          int64    `json:"id"`
	Matricule   string   `json:"matricule"`
	Email       string   `json:"email,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Store is the durable key-value slot for a single Record.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (*Record, error)
	Remove(ctx context.Context) error
}

func encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.ID == 0 && rec.Matricule == "" {
		return nil, ErrCorrupt
	}
	return &rec, nil
}

func cloneRecord(rec Record) Record {
	if rec.Permissions != nil {
		rec.Permissions = append([]string(nil), rec.Permissions...)
	}
	return rec
}

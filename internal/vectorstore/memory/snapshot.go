package memory

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"ragserver/internal/domain"
)

// snapshotVersion is bumped whenever the encoded layout changes; a snapshot
// carrying any other version is rejected as unreadable.
const snapshotVersion = 1

// snapshot is the durable byte representation of the store: every chunk with
// its text, metadata and vector. It round-trips exactly.
type snapshot struct {
	Version   int
	Dimension int
	Chunks    []domain.Chunk
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", domain.ErrBadFormat, err)
	}
	if s.Version != snapshotVersion {
		return snapshot{}, fmt.Errorf("%w: snapshot version %d, want %d", domain.ErrBadFormat, s.Version, snapshotVersion)
	}
	return s, nil
}

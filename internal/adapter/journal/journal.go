package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor decoder mode: %v", err))
	}
}

var ErrClosed = errors.New("journal closed")

// FileJournal appends event records to a file, one CBOR item per record.
// It is safe for concurrent use.
type FileJournal struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

func Open(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &FileJournal{
		file:    f,
		encoder: encMode.NewEncoder(f),
	}, nil
}

// Record stamps the record with a fresh id and appends it.
func (j *FileJournal) Record(record domain.EventRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if record.RecordId == "" {
		record.RecordId = uuid.NewString()
	}
	return j.encoder.Encode(record)
}

// Close is idempotent; records after Close return ErrClosed.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// ReadAll decodes every record in the journal at path.
func ReadAll(path string) ([]domain.EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []domain.EventRecord
	dec := decMode.NewDecoder(f)
	for {
		var r domain.EventRecord
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, err
		}
		records = append(records, r)
	}
}

var _ port.EventRecorder = (*FileJournal)(nil)

package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultRecordsPath  = "latest_plates.json"
	DefaultLastSentPath = "result/line_last_message.txt"
)

// FileStore keeps the history as a JSON array and the last sent message as
// a plain text file. Every write rewrites the whole file.
type FileStore struct {
	recordsPath  string
	lastSentPath string
}

func NewFileStore(recordsPath, lastSentPath string) FileStore {
	if recordsPath == "" {
		recordsPath = DefaultRecordsPath
	}
	if lastSentPath == "" {
		lastSentPath = DefaultLastSentPath
	}
	return FileStore{recordsPath: recordsPath, lastSentPath: lastSentPath}
}

func (s FileStore) LoadRecords(ctx context.Context) ([]Record, error) {
	raw, err := os.ReadFile(s.recordsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	err = json.Unmarshal(raw, &records)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.recordsPath, err)
	}
	return records, nil
}

func (s FileStore) SaveRecords(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.recordsPath, encoded)
}

func (s FileStore) LoadLastSent(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(s.lastSentPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s FileStore) SaveLastSent(ctx context.Context, message string) error {
	return writeFile(s.lastSentPath, []byte(message))
}

func writeFile(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, contents, 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

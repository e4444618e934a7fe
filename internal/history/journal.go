package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

/* Journal appends sealed failover records to a local file, one JSON document
per line. Records are write-once; the file is never rewritten. Not required
for correctness: the in-memory store is authoritative. */
type Journal struct {
	mu     sync.Mutex
	file   *os.File
	logger *logging.Logger
}

/* OpenJournal opens (or creates) the journal file in append-only mode */
func OpenJournal(path string, logger *logging.Logger) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{file: file, logger: logger}, nil
}

/* Write appends one record. Journal failures are logged, never propagated:
the attempt outcome does not depend on post-mortem persistence. */
func (j *Journal) Write(record failover.FailoverRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		j.logger.Error("Failed to encode record for journal", err, map[string]interface{}{"record_id": record.ID})
		return
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		j.logger.Error("Failed to append record to journal", err, map[string]interface{}{"record_id": record.ID})
	}
}

/* Close closes the journal file */
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
)

// MockPusher records every pushed batch. Err, when set, is returned instead
// of accepting the values; FailTimes limits how many pushes fail.
type MockPusher struct {
	Pushed    [][][]byte
	Err       error
	FailTimes int
	Calls     int
	mu        sync.Mutex
}

func (m *MockPusher) Push(_ context.Context, values [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil && (m.FailTimes == 0 || m.Calls <= m.FailTimes) {
		return m.Err
	}

	batch := make([][]byte, len(values))
	copy(batch, values)
	m.Pushed = append(m.Pushed, batch)
	return nil
}

func (m *MockPusher) GetPushed() [][][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pushed
}

func (m *MockPusher) BatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, 0, len(m.Pushed))
	for _, b := range m.Pushed {
		sizes = append(sizes, len(b))
	}
	return sizes
}

// SliceSource is a batch.Source over a fixed slice of records.
type SliceSource struct {
	Records []logging.LogRecord
}

func (s *SliceSource) DrainOne() (logging.LogRecord, bool) {
	if len(s.Records) == 0 {
		return logging.LogRecord{}, false
	}
	r := s.Records[0]
	s.Records = s.Records[1:]
	return r, true
}

func Records(n int) []logging.LogRecord {
	records := make([]logging.LogRecord, n)
	for i := range records {
		records[i] = logging.LogRecord{
			Timestamp: time.Unix(1700000000, 0).Add(time.Duration(i) * time.Second).UTC(),
			Logger:    "test",
			Level:     "INFO",
			Message:   fmt.Sprintf("message %d", i),
		}
	}
	return records
}

// MessageEncoder encodes a record as its bare message.
var MessageEncoder = logging.EncoderFunc(func(r logging.LogRecord) ([]byte, error) {
	return []byte(r.Message), nil
})

type MockAppender struct {
	Records     []logging.LogRecord
	mu          sync.Mutex
	Reject      bool
	AppendCalls int
}

func (m *MockAppender) Append(record logging.LogRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls++
	if m.Reject {
		return false
	}
	m.Records = append(m.Records, record)
	return true
}

func (m *MockAppender) GetStats() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records), m.AppendCalls
}

func (m *MockAppender) GetRecords() []logging.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logging.LogRecord, len(m.Records))
	copy(out, m.Records)
	return out
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":          "log content 1\nline 2\n",
		"default_pod-1_uid123/container-2/app.log":          "log content 2\nerror log\n",
		"kube-system_pod-2_uid456/container/app.log":        "log content 3\ninfo message\n",
		"default_pod-3_uid789/container/app.log":            "log content 4\n",
		"monitoring_pod-4_uid101/grafana/grafana.log":       "grafana starting\n",
		"monitoring_pod-4_uid101/prometheus/prometheus.log": "prometheus ready\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}

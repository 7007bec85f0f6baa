package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/Chichichkin/RedisLoggingAgent/internal/config"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/metrics"
)

// LogDaemonService discovers *.log files under a root directory, tails each
// one on a worker and hands every line to the appender as a record.
type LogDaemonService struct {
	config        config.Daemon
	appender      logging.Appender
	sinkMetrics   metrics.Source
	fileQueue     chan string
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *LogDaemonMetrics
	logger        *zap.Logger
	hostname      string

	tailingMu sync.Mutex
	tailing   map[string]struct{}
	seenFiles map[string]struct{}
	stopOnce  sync.Once
}

// NewLogDaemonService creates 2 + config.Workers goroutines on Start(). sinkMetrics
// may be nil; it is only used by the periodic report.
func NewLogDaemonService(ctx context.Context, cfg config.Daemon, appender logging.Appender,
	sinkMetrics metrics.Source, logger *zap.Logger) *LogDaemonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	nCtx, cancel := context.WithCancel(ctx)
	hostname, _ := os.Hostname()

	return &LogDaemonService{
		config:      cfg,
		appender:    appender,
		sinkMetrics: sinkMetrics,
		fileQueue:   make(chan string, cfg.FileQueueSize),
		ctx:         nCtx,
		cancel:      cancel,
		metrics:     &LogDaemonMetrics{},
		logger:      logger.Named("daemon"),
		hostname:    hostname,
		tailing:     make(map[string]struct{}),
		seenFiles:   make(map[string]struct{}),
	}
}

func (s *LogDaemonService) Start() {
	s.logger.Info("Starting log daemon service",
		zap.String("root", s.config.LogRootPath),
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.FileQueueSize))

	for i := 0; i < s.config.Workers; i++ {
		s.workersWg.Add(1)
		go s.worker(i)
	}

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.metricsReporter()
}

func (s *LogDaemonService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping log daemon service")
		s.cancel()

		s.subServicesWg.Wait()

		close(s.fileQueue)
		s.workersWg.Wait()

		s.logger.Info("Log daemon service stopped")
	})
}

func (s *LogDaemonService) Metrics() MetricsStamp {
	return s.metrics.GetMetricsStamp()
}

func (s *LogDaemonService) worker(id int) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Worker panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.processFile(s.ctx, filePath)
			s.release(filePath)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) processFile(ctx context.Context, filePath string) {
	s.metrics.FilesTailing.Add(1)
	defer s.metrics.FilesTailing.Add(-1)
	defer s.metrics.FilesFinished.Add(1)

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.logger.Warn("Failed to tail file", zap.String("file", filePath), zap.Error(err))
		s.metrics.FilesFailed.Add(1)
		return
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	fields := s.extractLabels(filePath)
	loggerName := loggerFor(fields)
	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				s.logger.Debug("Error reading file", zap.String("file", filePath), zap.Error(line.Err))
				continue
			}

			s.metrics.LinesRead.Add(1)
			record := logging.LogRecord{
				ID:        uuid.NewString(),
				Timestamp: line.Time,
				Host:      s.hostname,
				Logger:    loggerName,
				Level:     detectLevel(line.Text),
				Message:   line.Text,
				Fields:    fields,
			}
			if !s.appender.Append(record) {
				s.metrics.LinesRejected.Add(1)
			}
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check the idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		s.logger.Warn("Error discovering log files", zap.Error(err))
		return
	}

	for _, file := range files {
		if _, ok := s.seenFiles[file]; !ok {
			s.metrics.FilesDiscovered.Add(1)
			s.seenFiles[file] = struct{}{}
		}
		if !s.claim(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
		case <-s.ctx.Done():
			s.release(file)
			return

		default:
			s.release(file)
			s.metrics.QueueSkips.Add(1)
			s.logger.Debug("File queue full, skipping",
				zap.Int("queued", len(s.fileQueue)), zap.Int("capacity", cap(s.fileQueue)), zap.String("file", file))
		}
	}
}

// claim marks file as owned by a worker. Files already queued or tailed are
// not handed out again until released.
func (s *LogDaemonService) claim(file string) bool {
	s.tailingMu.Lock()
	defer s.tailingMu.Unlock()
	if _, busy := s.tailing[file]; busy {
		return false
	}
	s.tailing[file] = struct{}{}
	return true
}

func (s *LogDaemonService) release(file string) {
	s.tailingMu.Lock()
	defer s.tailingMu.Unlock()
	delete(s.tailing, file)
}

func (s *LogDaemonService) metricsReporter() {
	defer s.subServicesWg.Done()

	interval := s.config.ReportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.report()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) report() {
	d := s.metrics.GetMetricsStamp()
	fields := []zap.Field{
		zap.Int64("files_discovered", d.FilesDiscovered),
		zap.Int64("files_tailing", d.FilesTailing),
		zap.Int64("files_failed", d.FilesFailed),
		zap.Int64("lines_read", d.LinesRead),
		zap.Int64("lines_rejected", d.LinesRejected),
	}
	if s.sinkMetrics != nil {
		m := s.sinkMetrics.Snapshot()
		fields = append(fields,
			zap.Int("queue_size", m.QueueSize),
			zap.Int("queue_usage_pct", int(m.QueueUsage()*100)),
			zap.Int64("events_pushed", m.EventsPushed),
			zap.Int64("dropped_in_queueing", m.DroppedInQueueing),
			zap.Int64("dropped_in_push", m.DroppedInPush),
			zap.Int64("batch_purges", m.BatchPurges),
			zap.Int64("connect_failures", m.ConnectFailures),
		)
	}
	s.logger.Info("Metrics", fields...)
}

func (s *LogDaemonService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Debug("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

// extractLabels derives record fields from the kubelet layout
// <root>/<namespace>_<pod>_<uid>/<container>/<n>.log.
func (s *LogDaemonService) extractLabels(filePath string) map[string]string {
	labels := map[string]string{
		"node": s.config.NodeName,
		"file": filepath.Base(filePath),
	}

	rel, err := filepath.Rel(s.config.LogRootPath, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return labels
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		podParts := strings.Split(parts[0], "_")
		if len(podParts) >= 3 {
			labels["namespace"] = podParts[0]
			labels["pod"] = podParts[1]
			labels["pod_uid"] = podParts[2]
		}

		if len(parts) >= 3 {
			labels["container"] = parts[1]
		}
	}

	return labels
}

func loggerFor(labels map[string]string) string {
	if c, ok := labels["container"]; ok {
		if ns, ok := labels["namespace"]; ok {
			return ns + "/" + labels["pod"] + "/" + c
		}
		return c
	}
	return strings.TrimSuffix(labels["file"], ".log")
}

var levels = []string{"FATAL", "ERROR", "WARN", "INFO", "DEBUG", "TRACE"}

// detectLevel picks the first well known level keyword in the line.
func detectLevel(text string) string {
	upper := strings.ToUpper(text)
	if len(upper) > 128 {
		upper = upper[:128]
	}
	best, bestIdx := "INFO", -1
	for _, lvl := range levels {
		if i := strings.Index(upper, lvl); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			best, bestIdx = lvl, i
		}
	}
	return best
}

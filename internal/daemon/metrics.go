package daemon

import (
	"sync/atomic"
)

type LogDaemonMetrics struct {
	FilesDiscovered atomic.Int64
	FilesTailing    atomic.Int64
	FilesFinished   atomic.Int64
	FilesFailed     atomic.Int64
	LinesRead       atomic.Int64
	LinesRejected   atomic.Int64
	QueueSkips      atomic.Int64
}

type MetricsStamp struct {
	FilesDiscovered int64
	FilesTailing    int64
	FilesFinished   int64
	FilesFailed     int64
	LinesRead       int64
	LinesRejected   int64
	QueueSkips      int64
}

func (m *LogDaemonMetrics) GetMetricsStamp() MetricsStamp {
	return MetricsStamp{
		FilesDiscovered: m.FilesDiscovered.Load(),
		FilesTailing:    m.FilesTailing.Load(),
		FilesFinished:   m.FilesFinished.Load(),
		FilesFailed:     m.FilesFailed.Load(),
		LinesRead:       m.LinesRead.Load(),
		LinesRejected:   m.LinesRejected.Load(),
		QueueSkips:      m.QueueSkips.Load(),
	}
}

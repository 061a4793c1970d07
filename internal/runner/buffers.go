package runner

import (
	"bytes"
	"sync"

	ilogger "exchange-test-runner/internal/logger"
)

const logLineLimit = 2000

// logWriter splits a subprocess stream into lines and mirrors them into the
// run log, truncating overlong lines.
type logWriter struct {
	prefix  string
	maxLen  int
	buf     bytes.Buffer
	dropped bool
}

func newLogWriter(prefix string, maxLen int) *logWriter {
	if maxLen <= 0 {
		maxLen = logLineLimit
	}
	return &logWriter{prefix: prefix, maxLen: maxLen}
}

func (lw *logWriter) Write(p []byte) (int, error) {
	if lw == nil {
		return len(p), nil
	}
	total := len(p)
	for len(p) > 0 {
		if idx := bytes.IndexByte(p, '\n'); idx >= 0 {
			lw.writeLimited(p[:idx])
			lw.logLine(true)
			p = p[idx+1:]
			continue
		}
		lw.writeLimited(p)
		break
	}
	return total, nil
}

func (lw *logWriter) Flush() {
	if lw == nil || lw.buf.Len() == 0 {
		return
	}
	lw.logLine(false)
}

func (lw *logWriter) logLine(force bool) {
	if lw == nil {
		return
	}
	line := lw.buf.String()
	dropped := lw.dropped
	lw.dropped = false
	lw.buf.Reset()
	if line == "" && !force {
		return
	}
	if lw.maxLen > 0 {
		if dropped {
			if lw.maxLen > 3 {
				line = line[:min(len(line), lw.maxLen-3)] + "..."
			} else {
				line = line[:min(len(line), lw.maxLen)]
			}
		} else if len(line) > lw.maxLen {
			cutoff := lw.maxLen
			if cutoff > 3 {
				line = line[:cutoff-3] + "..."
			} else {
				line = line[:cutoff]
			}
		}
	}
	ilogger.LogInfo(lw.prefix + line)
}

func (lw *logWriter) writeLimited(p []byte) {
	if lw == nil || len(p) == 0 {
		return
	}
	if lw.maxLen <= 0 {
		lw.buf.Write(p)
		return
	}

	remaining := lw.maxLen - lw.buf.Len()
	if remaining <= 0 {
		lw.dropped = true
		return
	}
	if len(p) <= remaining {
		lw.buf.Write(p)
		return
	}
	lw.buf.Write(p[:remaining])
	lw.dropped = true
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return len(p), nil
	}

	if len(p) >= b.limit {
		b.data = append(b.data[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}

	total := len(b.data) + len(p)
	if total <= b.limit {
		b.data = append(b.data, p...)
		return len(p), nil
	}

	overflow := total - b.limit
	b.data = append(b.data[overflow:], p...)
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}

// combinedWriter serializes writes from the stdout and stderr pipes into one
// interleaved stream, in arrival order, mirroring each chunk into the run log.
type combinedWriter struct {
	mu   sync.Mutex
	tail tailBuffer
	logw *logWriter
}

func newCombinedWriter(limit int, logPrefix string) *combinedWriter {
	return &combinedWriter{
		tail: tailBuffer{limit: limit},
		logw: newLogWriter(logPrefix, logLineLimit),
	}
}

func (w *combinedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.tail.Write(p)
	_, _ = w.logw.Write(p)
	return len(p), nil
}

func (w *combinedWriter) writeString(s string) {
	_, _ = w.Write([]byte(s))
}

func (w *combinedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tail.String()
}

func (w *combinedWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logw.Flush()
}

// errStreamWriter feeds stderr chunks into the combined stream and into a
// stderr-only buffer used for warning classification.
type errStreamWriter struct {
	combined *combinedWriter
	mu       sync.Mutex
	buf      bytes.Buffer
}

func (w *errStreamWriter) Write(p []byte) (int, error) {
	_, _ = w.combined.Write(p)
	w.mu.Lock()
	w.buf.Write(p)
	w.mu.Unlock()
	return len(p), nil
}

func (w *errStreamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

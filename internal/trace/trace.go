// Package trace mirrors raw serial exchanges to an append-only log file
// for postmortem diagnosis. Records carry a timestamp and the goroutine
// that performed the exchange.
package trace

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"
)

type Logger struct {
	mu sync.Mutex
	f  *os.File
}

// Open creates a trace logger appending to path. An empty path disables
// tracing. Failure to open the file is logged and disables tracing; it
// is never fatal.
func Open(path string) *Logger {
	if path == "" {
		return &Logger{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("could not create trace file %q: %v", path, err)
		return &Logger{}
	}
	return &Logger{f: f}
}

// Record writes one trace record. op labels the direction of the
// exchange ("write" or "read ").
func (l *Logger) Record(op string, data []byte) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	fmt.Fprintf(l.f, "%s %s [%s] %q\n", time.Now().Format("2006-01-02T15:04:05.000000"), goid(), op, data)
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// goid extracts the current goroutine id from the runtime stack header
// ("goroutine N [running]: ...").
func goid() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) >= 2 {
		return "g" + string(fields[1])
	}
	return "g?"
}

// SPDX-License-Identifier: MIT
package diag

import (
	"wakeword/internal/capture"
	"wakeword/internal/log"
)

var eventLog = log.Component("Capture")

// EventLogger renders capture events into a LogBuffer and the process log.
type EventLogger struct {
	buf       *LogBuffer
	logChunks bool
}

// NewEventLogger writes into buf. With logChunks every chunk completion is
// recorded, otherwise only session boundaries and errors.
func NewEventLogger(buf *LogBuffer, logChunks bool) *EventLogger {
	return &EventLogger{buf: buf, logChunks: logChunks}
}

// HandleEvent implements capture.EventSink.
func (e *EventLogger) HandleEvent(ev capture.Event) {
	id := ev.Session.String()[:8]
	switch ev.Kind {
	case capture.CaptureStarted:
		e.buf.Printf("start:%s,req=%d\r\n", id, ev.Requested)
		eventLog.Debugf("session %s started, %d samples requested", id, ev.Requested)
	case capture.ChunkCompleted:
		if e.logChunks {
			e.buf.Printf("cb:%d,b%s\r\n", ev.Captured, ev.Buffer)
		}
		eventLog.Debugf("session %s chunk into %s done, %d/%d samples", id, ev.Buffer, ev.Captured, ev.Requested)
	case capture.CaptureComplete:
		e.buf.Printf("done:%s,%d/%d\r\n", id, ev.Captured, ev.Requested)
		eventLog.Infof("Receive completed, %d int16s read out of %d requested", ev.Captured, ev.Requested)
	case capture.TransferError:
		e.buf.Printf("err:%s,%d/%d,%v\r\n", id, ev.Captured, ev.Requested, ev.Err)
		eventLog.Warnf("session %s transfer into %s failed after %d samples: %v", id, ev.Buffer, ev.Captured, ev.Err)
	}
}

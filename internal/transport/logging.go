package transport

import (
	"wakeword/internal/log"
)

var tLog = log.Component("Transport")

// LoggingTransport implements the Transport interface by logging a summary
// of each message at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	tLog.Infof("Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch msg := data.(type) {
	case FrameMessage:
		tLog.Debugf("%d frames (hop %d) from session %s", len(msg.Frames), msg.Hop, msg.Session)
	case EventMessage:
		tLog.Debugf("event %s session=%s %d/%d", msg.Kind, msg.Session, msg.Captured, msg.Requested)
	default:
		tLog.Debugf("received %T", data)
	}
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	tLog.Debugf("LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

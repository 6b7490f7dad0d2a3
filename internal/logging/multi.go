package logging

// MultiLogger fans an event out to several loggers. Useful when an
// application wants both console output (via SlogSink) and a buffered
// file sink active at the same time.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a Logger that forwards to all of loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log forwards event to every configured logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)

package intelligence

import "log"

// StdTelemetry is the default Telemetry implementation, wrapping the
// standard library logger at process boundaries (server startup,
// best-effort background failures) rather than inline in hot-path code.
type StdTelemetry struct {
	logger *log.Logger
}

// NewStdTelemetry wraps logger, or the standard logger's default
// destination (stderr) when logger is nil.
func NewStdTelemetry(logger *log.Logger) *StdTelemetry {
	if logger == nil {
		logger = log.Default()
	}
	return &StdTelemetry{logger: logger}
}

var _ Telemetry = (*StdTelemetry)(nil)

// Logf implements Telemetry.
func (s *StdTelemetry) Logf(format string, args ...any) {
	s.logger.Printf(format, args...)
}

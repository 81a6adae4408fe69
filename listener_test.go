package outbox

import "testing"

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}
func (l *recordingLogger) Error(string, ...any) {}

func TestSafeNotifyRunsFn(t *testing.T) {
	called := false
	safeNotify(&recordingLogger{}, "scheduled", func() { called = true })
	if !called {
		t.Fatalf("expected fn to run")
	}
}

func TestSafeNotifyRecoversPanicAndLogs(t *testing.T) {
	logger := &recordingLogger{}
	safeNotify(logger, "scheduled", func() { panic("boom") })

	if len(logger.warnings) != 1 {
		t.Fatalf("expected one warning logged, got %d", len(logger.warnings))
	}
}

func TestNopListenerDoesNothing(t *testing.T) {
	var l NopListener
	l.Scheduled(Entry{})
	l.Success(Entry{})
	l.Failure(Entry{}, nil)
	l.Blocklisted(Entry{}, nil)
}

// Package sentryreport wraps getsentry/sentry-go to report fatal-invariant
// panics recovered by the inspection worker (spec §4.6, §8 "fatal
// invariant violation"), attaching every goroutine's stack as Sentry
// threads the way the teacher's own sentry package does.
package sentryreport

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/DataDog/gostackparse"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Init configures the global Sentry client. dsn empty disables reporting
// entirely, matching the teacher's "disabled for local development" guard.
func Init(dsn, environment, release string) {
	if dsn == "" {
		zap.S().Debug("sentryreport: no DSN configured, fatal-invariant reporting disabled")
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		Environment:   environment,
		Release:       release,
		EnableTracing: false,
	})
	if err != nil {
		zap.S().Errorw("sentryreport: failed to initialize sentry", "error", err)
	}
}

// CapturePanic builds a fatal-level Sentry event from a recovered panic
// value plus every goroutine's current stack, the same way
// createSentryEvent/captureGoroutinesAsThreads do in the teacher's sentry
// package. It is meant to be called from the tail of a deferred recover().
func CapturePanic(recovered interface{}, context map[string]string) {
	err := fmt.Errorf("fatal invariant violation: %v", recovered)

	event := sentry.NewEvent()
	event.Level = sentry.LevelFatal
	event.Message = err.Error()
	event.Exception = []sentry.Exception{{
		Type:       "FatalInvariantViolation",
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}

	threads, stack := captureGoroutinesAsThreads()
	event.Threads = threads
	event.Attachments = append(event.Attachments, &sentry.Attachment{
		Filename:    "stacktrace.txt",
		ContentType: "text/plain",
		Payload:     stack,
	})

	if len(context) > 0 {
		event.Tags = context
	}

	sentry.CurrentHub().Clone().CaptureEvent(event)
	sentry.Flush(2 * 1000 * 1000 * 1000) // best-effort flush before the worker restarts
}

func captureGoroutinesAsThreads() ([]sentry.Thread, []byte) {
	stack := entireStack()
	goroutines, err := gostackparse.Parse(bytes.NewReader(stack))
	if err != nil {
		zap.S().Warnw("sentryreport: failed to parse goroutine dump", "error", err)
		return nil, []byte{}
	}

	threads := make([]sentry.Thread, 0, len(goroutines))
	for _, g := range goroutines {
		threads = append(threads, sentry.Thread{
			ID:         fmt.Sprintf("%d", g.ID),
			Name:       fmt.Sprintf("goroutine %d", g.ID),
			Stacktrace: &sentry.Stacktrace{Frames: convertFrames(g.Stack)},
		})
	}
	return threads, stack
}

func entireStack() []byte {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

func convertFrames(goroutineFrames []*gostackparse.Frame) []sentry.Frame {
	frames := make([]sentry.Frame, 0, len(goroutineFrames))
	for _, gf := range goroutineFrames {
		frames = append(frames, sentry.Frame{
			Function: gf.Func,
			Filename: filepath.Base(gf.File),
			Lineno:   gf.Line,
			AbsPath:  gf.File,
		})
	}
	return frames
}

// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package wlog is the internal logging facade shared by bulkwriter,
// txn and docreader. It plays the same role the teacher's
// internal/log package plays for api/write.go, but backed by
// zerolog rather than a bespoke leveled logger.
package wlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.WarnLevel)
)

// SetLevel changes the minimum level emitted. Tests that want to see
// retry/backoff decisions raise this to zerolog.DebugLevel, the same
// way api/write_test.go flips log.Log.SetLogLevel(log.DebugLevel).
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
}

// SetOutput redirects log output, used by tests that want to assert
// on emitted lines.
func SetOutput(w zerolog.ConsoleWriter) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...interface{}) { event(get().Debug(), msg, kv) }
func Info(msg string, kv ...interface{})  { event(get().Info(), msg, kv) }
func Warn(msg string, kv ...interface{})  { event(get().Warn(), msg, kv) }
func Error(msg string, kv ...interface{}) { event(get().Error(), msg, kv) }

// event applies alternating key/value pairs to a zerolog.Event before
// sending msg, so call sites can write wlog.Debug("dispatching batch",
// "size", n, "doc", id) without constructing a map.
func event(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

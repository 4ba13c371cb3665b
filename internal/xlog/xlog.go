/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xlog builds and hands out the zap loggers the rest of the
// broker logs through.
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Log is a thin alias so callers don't need to import zap directly just
// to name the type.
type Log = zap.Logger

// FileOptions configures the rotating file sink. A zero value disables
// file output and logs to stdout only.
type FileOptions struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	once  sync.Once
	root  *zap.Logger
	opts  FileOptions
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// Configure sets the file sink options and minimum level used by the root
// logger. Must be called before the first LoggerModule call to take
// effect; safe to call from main before the server starts.
func Configure(o FileOptions, minLevel zapcore.Level) {
	opts = o
	level.SetLevel(minLevel)
}

func build() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stdout), level),
	}
	if opts.Filename != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 7),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// LoggerModule returns a child logger tagged with module=name, building
// the shared root logger on first use.
func LoggerModule(name string) *zap.Logger {
	once.Do(func() {
		root = build()
	})
	return root.With(zap.String("module", name))
}

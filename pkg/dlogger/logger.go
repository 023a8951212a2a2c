// Copyright © 2018 One Concern

// Package dlogger builds the zap loggers handed to repos, with log levels
package dlogger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelWarn sets the log level to warn
	LogLevelWarn = "warn"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"
)

type settings struct {
	json   bool
	out    zapcore.WriteSyncer
	fields []zap.Field
}

// Option for a logger
type Option func(*settings)

// JSON encodes entries as JSON objects rather than console lines
func JSON() Option {
	return func(s *settings) {
		s.json = true
	}
}

// Output sends entries to w. Defaults to stderr.
func Output(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = zapcore.Lock(zapcore.AddSync(w))
		}
	}
}

// Component tags every entry with the name of the component logging
func Component(name string) Option {
	return func(s *settings) {
		s.fields = append(s.fields, zap.String("component", name))
	}
}

// GetLogger returns a zap logger with the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	s := settings{out: zapcore.Lock(os.Stderr)}
	for _, apply := range opts {
		apply(&s)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if s.json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, s.out, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(s.out)).With(s.fields...), nil
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string, opts ...Option) *zap.Logger {
	l, err := GetLogger(logLevel, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

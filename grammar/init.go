package grammar

import "go.uber.org/zap"

// Package-level logger, silent until the main package injects one
var logger = zap.NewNop()

// SetLogger allows the main package to inject its configured logger
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l.With(zap.String("package", "grammar"))
	}
}

package notary

import "go.uber.org/zap"

// Package-level logger, replaced by SetLogger when the process configures one
var logger = zap.NewNop()

// SetLogger allows the main package to inject its configured logger
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l.With(zap.String("package", "notary"))
	}
}

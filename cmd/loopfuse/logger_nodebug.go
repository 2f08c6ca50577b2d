//go:build !debug
// +build !debug

package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// newLogger returns a production logger writing to paths. Debug entries are
// only kept if debug is set.
func newLogger(debug bool, paths ...string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = paths
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create new logger")
	}
	return l.Sugar(), nil
}

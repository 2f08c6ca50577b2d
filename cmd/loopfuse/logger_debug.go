//go:build debug
// +build debug

package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// newLogger returns a development logger writing to paths.
func newLogger(debug bool, paths ...string) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = paths
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create new logger")
	}
	return l.Sugar(), nil
}

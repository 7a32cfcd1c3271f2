package test

import (
	"context"
	"testing"

	"github.com/outofforest/logger"
)

// Context returns context carrying the logger, canceled when test finishes.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}

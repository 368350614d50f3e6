package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/nfeflow/internal/lock"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(lock.ErrHeld))
	assert.Equal(t, 2, exitCode(fmt.Errorf("run: %w", lock.ErrHeld)))
	assert.Equal(t, 1, exitCode(errors.New("login failed")))
}

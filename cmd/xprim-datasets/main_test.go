package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	datasets "github.com/prethora/xprim-datasets"
)

func TestExitCodeFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"unknown dataset", fmt.Errorf("lookup: %w", datasets.ErrUnknownDataset), ExitUnknownDataset},
		{"invalid layout", datasets.ErrInvalidLayout, ExitInvalidArgs},
		{"malformed url", datasets.ErrMalformedURL, ExitInvalidArgs},
		{"incomplete", datasets.ErrIncompleteLayout, ExitNotPrepared},
		{"network", datasets.ErrNetwork, ExitNetworkError},
		{"http status", fmt.Errorf("fetching: %w", datasets.ErrHTTPStatus), ExitNetworkError},
		{"digest", datasets.ErrIntegrity, ExitIntegrityError},
		{"size", datasets.ErrSizeMismatch, ExitIntegrityError},
		{"storage", datasets.ErrIO, ExitStorageError},
		{"records", datasets.ErrMalformedRecord, ExitDataError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFromError(tt.err))
		})
	}
}

// Command xprim-datasets downloads, verifies and inspects datasets using the
// datasets package.
//
// Configuration is loaded from environment variables:
//   - XPRIM_DATASETS_DIR: Override for the cache root (optional)
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	datasets "github.com/prethora/xprim-datasets"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid arguments or an unusable catalog.
	ExitInvalidArgs = 2

	// ExitUnknownDataset indicates the dataset is not in the catalog.
	ExitUnknownDataset = 3

	// ExitNotPrepared indicates dataset files are missing.
	ExitNotPrepared = 4

	// ExitNetworkError indicates a network failure or unexpected HTTP response.
	ExitNetworkError = 5

	// ExitIntegrityError indicates a size or digest check failed.
	ExitIntegrityError = 6

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7

	// ExitDataError indicates a record file could not be decoded.
	ExitDataError = 8
)

func main() {
	cfg := datasets.Config{
		CacheDir: os.Getenv("XPRIM_DATASETS_DIR"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := datasets.NewCommand(cfg)
	cmd.Use = "xprim-datasets"
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCodeFromError(err))
	}
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, datasets.ErrUnknownDataset):
		return ExitUnknownDataset
	case errors.Is(err, datasets.ErrInvalidLayout), errors.Is(err, datasets.ErrMalformedURL):
		return ExitInvalidArgs
	case errors.Is(err, datasets.ErrIncompleteLayout):
		return ExitNotPrepared
	case errors.Is(err, datasets.ErrNetwork), errors.Is(err, datasets.ErrHTTPStatus):
		return ExitNetworkError
	case errors.Is(err, datasets.ErrIntegrity), errors.Is(err, datasets.ErrSizeMismatch):
		return ExitIntegrityError
	case errors.Is(err, datasets.ErrIO):
		return ExitStorageError
	case errors.Is(err, datasets.ErrMalformedRecord), errors.Is(err, datasets.ErrUnsupportedFormat):
		return ExitDataError
	default:
		return ExitGeneralError
	}
}

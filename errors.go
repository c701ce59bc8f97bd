package datasets

import "errors"

// Sentinel errors for dataset acquisition and decoding.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrMalformedURL indicates an artifact URL could not be parsed or has no
	// final path segment to name the local file after.
	ErrMalformedURL = errors.New("datasets: malformed artifact url")

	// ErrHTTPStatus indicates the remote server answered with a non-success status.
	ErrHTTPStatus = errors.New("datasets: unexpected http status")

	// ErrSizeMismatch indicates the remote artifact size disagrees with the
	// size recorded in its descriptor.
	ErrSizeMismatch = errors.New("datasets: remote size does not match expected size")

	// ErrIntegrity indicates downloaded bytes failed digest verification.
	ErrIntegrity = errors.New("datasets: digest verification failed")

	// ErrIO indicates a filesystem operation failed.
	ErrIO = errors.New("datasets: storage error")

	// ErrNetwork indicates a network or connection failure.
	ErrNetwork = errors.New("datasets: network error")

	// ErrMalformedRecord indicates a record buffer is not a whole number of
	// fixed-size records, or the record geometry itself is invalid.
	ErrMalformedRecord = errors.New("datasets: data is not a whole number of records")

	// ErrInvalidLayout indicates a dataset layout failed validation.
	ErrInvalidLayout = errors.New("datasets: invalid dataset layout")

	// ErrIncompleteLayout indicates the expected files are still missing after
	// all artifacts were fetched and unpacked.
	ErrIncompleteLayout = errors.New("datasets: dataset files missing after unpack")

	// ErrUnknownDataset indicates no layout is registered under the given name.
	ErrUnknownDataset = errors.New("datasets: unknown dataset")

	// ErrUnsupportedFormat indicates no unpacker exists for an artifact format
	// or digest algorithm.
	ErrUnsupportedFormat = errors.New("datasets: unsupported format")
)

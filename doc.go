// Package datasets provides functionality for acquiring and decoding training
// datasets distributed as archives of fixed-size binary records.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via Preparer - Applications describe a dataset with a
//     Layout (or use a built-in one such as CIFAR10), call Prepare to make its
//     files available locally, and decode the train and test splits into
//     row-aligned label and feature matrices.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a complete
//     "datasets" subcommand tree to their Cobra root command, providing
//     commands like "mytool datasets prepare cifar-10".
//
// # Caching
//
// Artifacts are described by a RemoteArtifact: URL, exact size and an
// optional content digest. A cached file that matches its descriptor is used
// without any network access. Downloads are verified before they are written,
// and are written atomically, so a file under its final name is always a
// complete, verified copy. While a download runs, a <file>.lock next to the
// target keeps concurrent processes from fetching the same artifact; it is
// removed once the target is in place.
//
// # Records
//
// A record is a label prefix followed by a feature block. Decode treats the
// files of a split as one concatenated stream and rejects streams that are
// not a whole number of records.
//
// # Storage
//
// Datasets are cached under Config.CacheDir (default ./data), in
// <CacheDir>/<Family>/<Subdir>.
package datasets

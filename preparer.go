package datasets

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Preparer makes one dataset available locally and opens it for decoding.
// A Preparer is configured entirely by its Layout; there is no per-dataset code.
type Preparer struct {
	// layout describes the dataset's files, record shape and artifacts.
	layout Layout

	// storage resolves cache paths.
	storage *storage

	// fetcher materialises artifacts.
	fetcher *Fetcher

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// concurrency bounds simultaneous artifact fetches.
	concurrency int

	// progressFn receives progress reports. May be nil.
	progressFn func(Progress)

	// metrics records cache and transfer counters. May be nil.
	metrics *Metrics

	// unpackers overrides the built-in unpacker per format.
	unpackers map[Format]Unpacker
}

// NewPreparer creates a Preparer for layout under the configured cache root.
// Returns an error wrapping ErrInvalidLayout if the layout is unusable.
func NewPreparer(cfg Config, layout Layout, opts ...Option) (*Preparer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Preparer{
		layout:      layout,
		storage:     newStorage(cfg),
		fetcher:     newFetcher(o),
		logger:      o.logger,
		concurrency: o.concurrency,
		progressFn:  o.progressFn,
		metrics:     o.metrics,
		unpackers:   o.unpackers,
	}, nil
}

// Layout returns the layout the Preparer was built with.
func (p *Preparer) Layout() Layout {
	return p.layout
}

// Path returns the directory holding the dataset's unpacked files.
func (p *Preparer) Path() string {
	return p.storage.datasetDir(p.layout)
}

// Prepare ensures every file of the layout exists locally, fetching and
// unpacking the layout's artifacts when any is missing, then reads the label
// files and returns a Dataset bound to the train and test files.
//
// When all expected files are present no network access happens at all.
// Artifacts are fetched concurrently; the first failure fails the whole
// preparation once every in-flight fetch has returned.
func (p *Preparer) Prepare(ctx context.Context) (*Dataset, error) {
	dir := p.Path()

	if missing := missingFiles(dir, p.layout.ExpectedFiles()); len(missing) > 0 {
		if p.logger != nil {
			p.logger.Info("preparing dataset", "dataset", p.layout.Name, "missing", len(missing), "dir", dir)
		}

		if err := p.acquire(ctx); err != nil {
			return nil, fmt.Errorf("preparing %s: %w", p.layout.Name, err)
		}

		if missing := missingFiles(dir, p.layout.ExpectedFiles()); len(missing) > 0 {
			return nil, fmt.Errorf("preparing %s: %w: %v", p.layout.Name, ErrIncompleteLayout, missing)
		}
	} else if p.logger != nil {
		p.logger.Debug("dataset already prepared", "dataset", p.layout.Name, "dir", dir)
	}

	labels, err := readLabelSet(joinAll(dir, p.layout.LabelFiles))
	if err != nil {
		return nil, fmt.Errorf("reading labels of %s: %w", p.layout.Name, err)
	}

	return &Dataset{
		layout:     p.layout,
		dir:        dir,
		labels:     labels,
		trainFiles: joinAll(dir, p.layout.TrainFiles),
		testFiles:  joinAll(dir, p.layout.TestFiles),
	}, nil
}

// acquire fetches all artifacts in parallel, then unpacks them in layout order.
func (p *Preparer) acquire(ctx context.Context) error {
	dest := p.storage.familyDir(p.layout.Family)
	paths := make([]string, len(p.layout.Artifacts))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, a := range p.layout.Artifacts {
		i, a := i, a
		g.Go(func() error {
			path, err := p.fetcher.EnsureLocal(ctx, a, dest)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, a := range p.layout.Artifacts {
		u, err := p.unpackerFor(a)
		if err != nil {
			return err
		}
		if u == nil {
			continue
		}

		if p.progressFn != nil {
			p.progressFn(Progress{Phase: PhaseUnpacking, URL: a.URL, BytesTotal: int64(a.Size)})
		}
		if p.logger != nil {
			p.logger.Info("unpacking artifact", "path", paths[i], "dest", dest)
		}
		if err := u.Unpack(ctx, paths[i], dest); err != nil {
			return fmt.Errorf("unpacking %s: %w", paths[i], err)
		}
	}
	return nil
}

// unpackerFor returns the unpacker for an artifact, or nil when the artifact
// is used as downloaded.
func (p *Preparer) unpackerFor(a RemoteArtifact) (Unpacker, error) {
	if u, ok := p.unpackers[a.Format]; ok {
		return u, nil
	}
	return newUnpacker(a.Format, func(name string) {
		if p.metrics != nil {
			p.metrics.unpackedFiles.Inc()
		}
		if p.progressFn != nil {
			p.progressFn(Progress{Phase: PhaseUnpacking, URL: a.URL, BytesTotal: int64(a.Size), CurrentFile: name})
		}
	})
}

// Remove deletes the dataset directory and the cached artifacts of its layout.
// Missing files are not an error. When the layout has no Subdir its files sit
// directly in the family directory, so only those files are removed and other
// datasets of the family are left alone.
func (p *Preparer) Remove() error {
	if p.layout.Subdir == "" {
		if err := removeFiles(joinAll(p.Path(), p.layout.ExpectedFiles())...); err != nil {
			return err
		}
	} else if err := removeAll(p.Path()); err != nil {
		return err
	}

	dest := p.storage.familyDir(p.layout.Family)
	for _, a := range p.layout.Artifacts {
		path, err := a.ResolveLocalPath(dest)
		if err != nil {
			return err
		}
		if err := removeFiles(path, path+".lock", path+".tmp"); err != nil {
			return err
		}
	}

	if p.logger != nil {
		p.logger.Info("dataset removed", "dataset", p.layout.Name, "dir", p.Path())
	}
	return nil
}

// ArtifactStatus describes the local copy of one artifact.
type ArtifactStatus struct {
	// URL identifies the artifact.
	URL string `json:"url"`

	// Path is where the artifact is cached.
	Path string `json:"path"`

	// Valid reports whether the cached file matches size and digest.
	Valid bool `json:"valid"`
}

// Status summarises what is present in the cache for a dataset.
type Status struct {
	// Dir is the dataset directory.
	Dir string `json:"dir"`

	// Artifacts lists each artifact's cached copy.
	Artifacts []ArtifactStatus `json:"artifacts"`

	// MissingFiles lists layout files that do not exist.
	MissingFiles []string `json:"missing_files,omitempty"`
}

// Ready reports whether Prepare would skip the network.
func (s Status) Ready() bool {
	return len(s.MissingFiles) == 0
}

// Verify inspects the cache without network access. Artifact digests are
// recomputed, so this reads every cached archive in full.
func (p *Preparer) Verify(ctx context.Context) (Status, error) {
	dest := p.storage.familyDir(p.layout.Family)
	st := Status{
		Dir:          p.Path(),
		MissingFiles: missingFiles(p.Path(), p.layout.ExpectedFiles()),
	}
	for _, a := range p.layout.Artifacts {
		if err := ctx.Err(); err != nil {
			return Status{}, err
		}
		path, err := a.ResolveLocalPath(dest)
		if err != nil {
			return Status{}, err
		}
		st.Artifacts = append(st.Artifacts, ArtifactStatus{
			URL:   a.URL,
			Path:  path,
			Valid: a.LocalFileIsValid(path),
		})
	}
	return st, nil
}

package datasets

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CIFARImageBytes is the feature block of one CIFAR record: a 32x32 image,
// channel-major, red then green then blue.
const CIFARImageBytes = 32 * 32 * 3

// Layout declares everything the Preparer needs to know about one dataset:
// where its files live in the cache, which files hold labels, training and
// test records, how records are shaped, and which artifacts provide them.
type Layout struct {
	// Name is the catalog key, e.g. "cifar-10".
	Name string `yaml:"name"`

	// Family is the cache subdirectory shared by related datasets, e.g. "cifar".
	Family string `yaml:"family"`

	// Subdir is the directory the artifacts unpack into, inside Family.
	Subdir string `yaml:"subdir"`

	// LabelFiles are plain-text category name files, relative to Subdir.
	LabelFiles []string `yaml:"label_files"`

	// TrainFiles are binary record files for the training split, in row order.
	TrainFiles []string `yaml:"train_files"`

	// TestFiles are binary record files for the test split, in row order.
	TestFiles []string `yaml:"test_files"`

	// LabelBytes is the label prefix length of each record.
	// Zero means one byte per label file.
	LabelBytes int `yaml:"label_bytes,omitempty"`

	// FeatureBytes is the fixed feature block length of each record.
	FeatureBytes int `yaml:"feature_bytes"`

	// Artifacts are the remote files that, once fetched and unpacked,
	// produce the layout.
	Artifacts []RemoteArtifact `yaml:"artifacts"`
}

// RecordLabelBytes returns the label prefix length of a record.
func (l Layout) RecordLabelBytes() int {
	if l.LabelBytes == 0 {
		return len(l.LabelFiles)
	}
	return l.LabelBytes
}

// RecordSize returns the total length of one record.
func (l Layout) RecordSize() int {
	return l.RecordLabelBytes() + l.FeatureBytes
}

// ExpectedFiles lists label, train and test files, in that order.
func (l Layout) ExpectedFiles() []string {
	files := make([]string, 0, len(l.LabelFiles)+len(l.TrainFiles)+len(l.TestFiles))
	files = append(files, l.LabelFiles...)
	files = append(files, l.TrainFiles...)
	files = append(files, l.TestFiles...)
	return files
}

// Validate checks the layout is usable. Errors wrap ErrInvalidLayout.
func (l Layout) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidLayout, l.Name, fmt.Sprintf(format, args...))
	}

	if l.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLayout)
	}
	if err := checkRelative(l.Family); err != nil {
		return invalid("family %q must be a relative directory name", l.Family)
	}
	if l.Subdir != "" {
		if err := checkRelative(l.Subdir); err != nil {
			return invalid("subdir %q: %v", l.Subdir, err)
		}
	}
	for _, name := range l.ExpectedFiles() {
		if err := checkRelative(name); err != nil {
			return invalid("file %q: %v", name, err)
		}
	}
	if len(l.TrainFiles) == 0 && len(l.TestFiles) == 0 {
		return invalid("no train or test files")
	}
	if l.LabelBytes < 0 {
		return invalid("label_bytes %d is negative", l.LabelBytes)
	}
	if l.FeatureBytes <= 0 {
		return invalid("feature_bytes %d must be positive", l.FeatureBytes)
	}
	if len(l.Artifacts) == 0 {
		return invalid("no artifacts")
	}

	seen := make(map[string]bool, len(l.Artifacts))
	for _, a := range l.Artifacts {
		name, err := a.FileName()
		if err != nil {
			return invalid("artifact: %v", err)
		}
		if seen[name] {
			return invalid("two artifacts named %q", name)
		}
		seen[name] = true
		if a.Size == 0 {
			return invalid("artifact %s: size is required", a.URL)
		}
		if a.Size > math.MaxInt64 {
			return invalid("artifact %s: size %d is too large", a.URL, a.Size)
		}
		if a.Digest != "" {
			if _, _, err := ParseDigest(a.Digest); err != nil {
				return invalid("artifact %s: %v", a.URL, err)
			}
		}
		if _, err := ParseFormat(string(a.Format)); err != nil {
			return invalid("artifact %s: %v", a.URL, err)
		}
	}
	return nil
}

// checkRelative rejects absolute paths and paths that climb out of their parent.
func checkRelative(name string) error {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("not a relative path inside the dataset")
	}
	return nil
}

// CIFAR10 returns the layout of the 10-class CIFAR binary distribution.
func CIFAR10() Layout {
	return Layout{
		Name:       "cifar-10",
		Family:     "cifar",
		Subdir:     "cifar-10-batches-bin",
		LabelFiles: []string{"batches.meta.txt"},
		TrainFiles: []string{
			"data_batch_1.bin",
			"data_batch_2.bin",
			"data_batch_3.bin",
			"data_batch_4.bin",
			"data_batch_5.bin",
		},
		TestFiles:    []string{"test_batch.bin"},
		LabelBytes:   1,
		FeatureBytes: CIFARImageBytes,
		Artifacts: []RemoteArtifact{{
			URL:    "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz",
			Size:   170052171,
			Digest: "c32a1d4ab5d03f1284b67883e8d87530",
			Format: FormatTarGzip,
		}},
	}
}

// CIFAR100 returns the layout of the 100-class CIFAR binary distribution.
// Each record carries a coarse and a fine label byte.
func CIFAR100() Layout {
	return Layout{
		Name:         "cifar-100",
		Family:       "cifar",
		Subdir:       "cifar-100-binary",
		LabelFiles:   []string{"coarse_label_names.txt", "fine_label_names.txt"},
		TrainFiles:   []string{"train.bin"},
		TestFiles:    []string{"test.bin"},
		LabelBytes:   2,
		FeatureBytes: CIFARImageBytes,
		Artifacts: []RemoteArtifact{{
			URL:    "https://www.cs.toronto.edu/~kriz/cifar-100-binary.tar.gz",
			Size:   168513733,
			Digest: "03b5dce01913d631647c71ecec9e9cb8",
			Format: FormatTarGzip,
		}},
	}
}

// BuiltinLayouts returns the layouts shipped with the package, keyed by name.
func BuiltinLayouts() map[string]Layout {
	return map[string]Layout{
		"cifar-10":  CIFAR10(),
		"cifar-100": CIFAR100(),
	}
}

// LookupLayout returns the built-in layout registered under name.
func LookupLayout(name string) (Layout, error) {
	return NewCatalog().Lookup(name)
}

// Catalog is a set of layouts keyed by name.
type Catalog map[string]Layout

// NewCatalog returns a catalog holding the built-in layouts.
func NewCatalog() Catalog {
	return Catalog(BuiltinLayouts())
}

// Lookup returns the layout registered under name.
func (c Catalog) Lookup(name string) (Layout, error) {
	l, ok := c[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return l, nil
}

// Names returns the catalog keys in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge adds layouts to the catalog, replacing entries with the same name.
func (c Catalog) Merge(layouts []Layout) {
	for _, l := range layouts {
		c[l.Name] = l
	}
}

// catalogFile is the on-disk shape of a layout catalog.
type catalogFile struct {
	Datasets []Layout `yaml:"datasets"`
}

// ParseLayouts decodes a YAML catalog and validates every layout in it.
func ParseLayouts(data []byte) ([]Layout, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing catalog: %v", ErrInvalidLayout, err)
	}

	seen := make(map[string]bool, len(file.Datasets))
	for i := range file.Datasets {
		l := &file.Datasets[i]
		for j := range l.Artifacts {
			if l.Artifacts[j].Format == "" {
				l.Artifacts[j].Format = FormatRaw
			}
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: duplicate dataset %q", ErrInvalidLayout, l.Name)
		}
		seen[l.Name] = true
	}
	return file.Datasets, nil
}

// LoadLayouts reads a YAML catalog file.
func LoadLayouts(path string) ([]Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return ParseLayouts(data)
}

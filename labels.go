package datasets

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LabelSet holds the category names of a dataset, one list per label file,
// in layout order. For a 100-class corpus this is typically the coarse and
// the fine label names.
type LabelSet [][]string

// Names returns the category names of label scheme i, or nil when out of range.
func (s LabelSet) Names(i int) []string {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// Name returns the category name for a raw label byte in scheme i.
// The boolean is false when the scheme or the value is out of range.
func (s LabelSet) Name(scheme int, value byte) (string, bool) {
	names := s.Names(scheme)
	if int(value) >= len(names) {
		return "", false
	}
	return names[value], true
}

// ReadLabelFile reads one category name per line. Blank lines are skipped
// and a trailing carriage return is removed.
func ReadLabelFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}
	return names, nil
}

// readLabelSet reads every label file in order. Scheme i always comes from
// label file i, so it lines up with label byte i of a record; a file without
// names yields an empty scheme.
func readLabelSet(paths []string) (LabelSet, error) {
	set := make(LabelSet, 0, len(paths))
	for _, p := range paths {
		names, err := ReadLabelFile(p)
		if err != nil {
			return nil, err
		}
		if names == nil {
			names = []string{}
		}
		set = append(set, names)
	}
	return set, nil
}

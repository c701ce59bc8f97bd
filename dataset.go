package datasets

// Dataset is a prepared dataset on local storage. Matrices are decoded from
// the backing files on every call and never retained.
type Dataset struct {
	layout     Layout
	dir        string
	labels     LabelSet
	trainFiles []string
	testFiles  []string
}

// Name returns the layout name.
func (d *Dataset) Name() string {
	return d.layout.Name
}

// Dir returns the directory holding the dataset files.
func (d *Dataset) Dir() string {
	return d.dir
}

// Labels returns the category names read at preparation time.
func (d *Dataset) Labels() LabelSet {
	return d.labels
}

// TrainFiles returns the paths of the training record files, in row order.
func (d *Dataset) TrainFiles() []string {
	return append([]string(nil), d.trainFiles...)
}

// TestFiles returns the paths of the test record files, in row order.
func (d *Dataset) TestFiles() []string {
	return append([]string(nil), d.testFiles...)
}

// RecordSize returns the length in bytes of one record.
func (d *Dataset) RecordSize() int {
	return d.layout.RecordSize()
}

// Train decodes the training split into row-aligned label and feature matrices.
func (d *Dataset) Train() (labels, features Matrix, err error) {
	return Decode(d.trainFiles, d.layout.RecordLabelBytes(), d.layout.RecordSize())
}

// Test decodes the test split into row-aligned label and feature matrices.
func (d *Dataset) Test() (labels, features Matrix, err error) {
	return Decode(d.testFiles, d.layout.RecordLabelBytes(), d.layout.RecordSize())
}

package datasets

import (
	"fmt"
	"os"
)

// Matrix is a row-major two-dimensional array of bytes.
type Matrix struct {
	// Rows is the number of records.
	Rows int

	// Cols is the number of bytes per record.
	Cols int

	// Data holds Rows*Cols bytes, row after row.
	Data []byte
}

// Row returns row i. The slice aliases the matrix data.
func (m Matrix) Row(i int) []byte {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// At returns the byte at row i, column j.
func (m Matrix) At(i, j int) byte {
	return m.Data[i*m.Cols+j]
}

// Shape returns (Rows, Cols).
func (m Matrix) Shape() (int, int) {
	return m.Rows, m.Cols
}

// Decode reads the files in order, treats their concatenation as a sequence
// of recordSize-byte records, and splits every record after labelBytes bytes.
// Rows from paths[i] precede rows from paths[i+1].
//
// The label and feature matrices are freshly allocated and share no memory
// with each other or with the file buffers. Decode holds at most one file
// buffer besides the two results.
func Decode(paths []string, labelBytes, recordSize int) (labels, features Matrix, err error) {
	if err := checkGeometry(labelBytes, recordSize); err != nil {
		return Matrix{}, Matrix{}, err
	}

	sizes := make([]int64, len(paths))
	var total int64
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return Matrix{}, Matrix{}, fmt.Errorf("%w: %v", ErrIO, err)
		}
		sizes[i] = info.Size()
		total += info.Size()
	}
	if total%int64(recordSize) != 0 {
		return Matrix{}, Matrix{}, fmt.Errorf("%w: %d bytes across %d files, record size %d",
			ErrMalformedRecord, total, len(paths), recordSize)
	}

	rows := int(total / int64(recordSize))
	labels = newMatrix(rows, labelBytes)
	features = newMatrix(rows, recordSize-labelBytes)

	// Records may straddle file boundaries; carry the partial tail over.
	var carry []byte
	row := 0
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return Matrix{}, Matrix{}, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if int64(len(data)) != sizes[i] {
			return Matrix{}, Matrix{}, fmt.Errorf("%w: %s changed size while decoding", ErrIO, p)
		}
		if len(carry) > 0 {
			data = append(carry, data...)
			carry = nil
		}
		n := len(data) / recordSize
		splitRecords(data[:n*recordSize], labelBytes, recordSize, labels, features, row)
		row += n
		if rest := data[n*recordSize:]; len(rest) > 0 {
			carry = append([]byte(nil), rest...)
		}
	}

	return labels, features, nil
}

// DecodeBytes splits an in-memory buffer of fixed-size records.
// The returned matrices do not alias data.
func DecodeBytes(data []byte, labelBytes, recordSize int) (labels, features Matrix, err error) {
	if err := checkGeometry(labelBytes, recordSize); err != nil {
		return Matrix{}, Matrix{}, err
	}
	if len(data)%recordSize != 0 {
		return Matrix{}, Matrix{}, fmt.Errorf("%w: %d bytes, record size %d",
			ErrMalformedRecord, len(data), recordSize)
	}

	rows := len(data) / recordSize
	labels = newMatrix(rows, labelBytes)
	features = newMatrix(rows, recordSize-labelBytes)
	splitRecords(data, labelBytes, recordSize, labels, features, 0)
	return labels, features, nil
}

// checkGeometry rejects record layouts that cannot be split.
func checkGeometry(labelBytes, recordSize int) error {
	if recordSize <= 0 {
		return fmt.Errorf("%w: record size %d must be positive", ErrMalformedRecord, recordSize)
	}
	if labelBytes < 0 || labelBytes > recordSize {
		return fmt.Errorf("%w: label bytes %d outside record size %d", ErrMalformedRecord, labelBytes, recordSize)
	}
	return nil
}

func newMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]byte, rows*cols)}
}

// splitRecords copies whole records from data into the matrices starting at
// row offset.
func splitRecords(data []byte, labelBytes, recordSize int, labels, features Matrix, offset int) {
	featureBytes := recordSize - labelBytes
	for r := 0; r*recordSize < len(data); r++ {
		rec := data[r*recordSize : (r+1)*recordSize]
		dst := offset + r
		copy(labels.Data[dst*labelBytes:(dst+1)*labelBytes], rec[:labelBytes])
		copy(features.Data[dst*featureBytes:(dst+1)*featureBytes], rec[labelBytes:])
	}
}

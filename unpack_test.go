package datasets

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnpacker(t *testing.T) {
	for _, f := range []Format{FormatRaw, ""} {
		u, err := NewUnpacker(f)
		require.NoError(t, err)
		assert.Nil(t, u)
	}

	for _, f := range []Format{FormatTar, FormatTarGzip, FormatGzip} {
		u, err := NewUnpacker(f)
		require.NoError(t, err)
		assert.NotNil(t, u, "format %s", f)
	}

	_, err := NewUnpacker("zip")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
}

func TestTarUnpacker(t *testing.T) {
	entries := []archiveEntry{
		{"batches/meta.txt", []byte("cat\ndog\n")},
		{"batches/data_1.bin", records(2, 1, 3)},
	}

	t.Run("tar.gz", func(t *testing.T) {
		dir := t.TempDir()
		archive := writeFile(t, dir, "set.tar.gz", buildTarGz(t, entries))
		dest := filepath.Join(dir, "out")

		var seen []string
		u, err := newUnpacker(FormatTarGzip, func(name string) { seen = append(seen, name) })
		require.NoError(t, err)
		require.NoError(t, u.Unpack(context.Background(), archive, dest))

		for _, e := range entries {
			got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(e.name)))
			require.NoError(t, err)
			assert.Equal(t, e.data, got)
		}
		assert.Equal(t, []string{"batches/meta.txt", "batches/data_1.bin"}, seen)
	})

	t.Run("plain tar", func(t *testing.T) {
		dir := t.TempDir()
		archive := writeFile(t, dir, "set.tar", buildTar(t, entries))
		dest := filepath.Join(dir, "out")

		u, err := NewUnpacker(FormatTar)
		require.NoError(t, err)
		require.NoError(t, u.Unpack(context.Background(), archive, dest))

		_, err = os.Stat(filepath.Join(dest, "batches", "data_1.bin"))
		assert.NoError(t, err)
	})

	t.Run("directory entries and skipped links", func(t *testing.T) {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "d/", Typeflag: tar.TypeDir, Mode: 0755}))
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "d/link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}))
		require.NoError(t, tw.Close())

		dir := t.TempDir()
		archive := writeFile(t, dir, "set.tar", buf.Bytes())
		dest := filepath.Join(dir, "out")

		u, err := NewUnpacker(FormatTar)
		require.NoError(t, err)
		require.NoError(t, u.Unpack(context.Background(), archive, dest))

		info, err := os.Stat(filepath.Join(dest, "d"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		_, err = os.Lstat(filepath.Join(dest, "d", "link"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("member escaping destination", func(t *testing.T) {
		dir := t.TempDir()
		archive := writeFile(t, dir, "evil.tar", buildTar(t, []archiveEntry{{"../escape.txt", []byte("x")}}))
		dest := filepath.Join(dir, "out")

		u, err := NewUnpacker(FormatTar)
		require.NoError(t, err)
		err = u.Unpack(context.Background(), archive, dest)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

		_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("not gzip", func(t *testing.T) {
		dir := t.TempDir()
		archive := writeFile(t, dir, "set.tar.gz", []byte("definitely not gzip"))

		u, err := NewUnpacker(FormatTarGzip)
		require.NoError(t, err)
		err = u.Unpack(context.Background(), archive, filepath.Join(dir, "out"))
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		dir := t.TempDir()
		archive := writeFile(t, dir, "set.tar", buildTar(t, entries))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		u, err := NewUnpacker(FormatTar)
		require.NoError(t, err)
		err = u.Unpack(ctx, archive, filepath.Join(dir, "out"))
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})
}

func TestGzipUnpacker(t *testing.T) {
	payload := records(4, 1, 9)

	dir := t.TempDir()
	archive := writeFile(t, dir, "train.bin.gz", gzipBytes(t, payload))
	dest := filepath.Join(dir, "out")

	var seen []string
	u, err := newUnpacker(FormatGzip, func(name string) { seen = append(seen, name) })
	require.NoError(t, err)
	require.NoError(t, u.Unpack(context.Background(), archive, dest))

	got, err := os.ReadFile(filepath.Join(dest, "train.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{"train.bin"}, seen)
}

func TestMemberPath(t *testing.T) {
	dest := filepath.Join("cache", "family")

	tests := []struct {
		name    string
		member  string
		want    string
		wantErr bool
	}{
		{"nested", "a/b.bin", filepath.Join(dest, "a", "b.bin"), false},
		{"dot prefix", "./a.bin", filepath.Join(dest, "a.bin"), false},
		{"inner parent stays inside", "a/../b.bin", filepath.Join(dest, "b.bin"), false},
		{"parent", "../a.bin", "", true},
		{"bare parent", "..", "", true},
		{"absolute", "/etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := memberPath(dest, tt.member)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteMemberSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")

	err := writeMember(path, bytes.NewReader([]byte("abc")), 5)
	assert.True(t, errors.Is(err, ErrIO), "got %v", err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

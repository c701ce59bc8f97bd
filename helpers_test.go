package datasets

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// archiveEntry is one member of a test archive.
type archiveEntry struct {
	name string
	data []byte
}

// buildTar returns an uncompressed tar holding entries as regular files.
func buildTar(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     0644,
			Size:     int64(len(e.data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// buildTarGz returns a gzip-compressed tar holding entries.
func buildTarGz(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	return gzipBytes(t, buildTar(t, entries))
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// records builds n records of labelBytes label bytes followed by
// featureBytes feature bytes. Record i has every label byte set to i and
// every feature byte set to 100+i.
func records(n, labelBytes, featureBytes int) []byte {
	out := make([]byte, 0, n*(labelBytes+featureBytes))
	for i := 0; i < n; i++ {
		out = append(out, bytes.Repeat([]byte{byte(i)}, labelBytes)...)
		out = append(out, bytes.Repeat([]byte{byte(100 + i)}, featureBytes)...)
	}
	return out
}

// fileServer serves fixed bodies by path and counts requests per path.
type fileServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]*atomic.Int64
}

func newFileServer(t *testing.T, files map[string][]byte) *fileServer {
	t.Helper()

	s := &fileServer{files: files, hits: make(map[string]*atomic.Int64)}
	for path := range files {
		s.hits[path] = &atomic.Int64{}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		data, ok := s.files[r.URL.Path]
		counter := s.hits[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		counter.Add(1)
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// requests returns how often path was served.
func (s *fileServer) requests(path string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.hits[path]; ok {
		return c.Load()
	}
	return 0
}

// artifactFor describes a file served by s at path.
func (s *fileServer) artifactFor(path string, format Format) RemoteArtifact {
	s.mu.Lock()
	data := s.files[path]
	s.mu.Unlock()
	return RemoteArtifact{
		URL:    s.URL + path,
		Size:   uint64(len(data)),
		Digest: Digest(data),
		Format: format,
	}
}

// testLogger is a simple Logger implementation for testing.
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, prefix+msg)
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG: ", msg) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO: ", msg) }
func (l *testLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN: ", msg) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR: ", msg) }

func (l *testLogger) contains(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == entry {
			return true
		}
	}
	return false
}

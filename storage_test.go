package datasets

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewStorage(t *testing.T) {
	t.Run("default cache dir", func(t *testing.T) {
		s := newStorage(Config{})
		if s.baseDir != DefaultCacheDir {
			t.Errorf("baseDir = %q, want %q", s.baseDir, DefaultCacheDir)
		}
	})

	t.Run("configured cache dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		s := newStorage(Config{CacheDir: tmpDir})
		if s.baseDir != tmpDir {
			t.Errorf("baseDir = %q, want %q", s.baseDir, tmpDir)
		}
	})
}

func TestDatasetDir(t *testing.T) {
	s := &storage{baseDir: "/cache"}

	got := s.datasetDir(CIFAR10())
	want := filepath.Join("/cache", "cifar", "cifar-10-batches-bin")
	if got != want {
		t.Errorf("datasetDir() = %q, want %q", got, want)
	}

	got = s.familyDir("cifar")
	want = filepath.Join("/cache", "cifar")
	if got != want {
		t.Errorf("familyDir() = %q, want %q", got, want)
	}
}

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	testData := []byte("hello world")

	// Write file
	if err := atomicWrite(testFile, testData); err != nil {
		t.Fatalf("atomicWrite() error = %v", err)
	}

	// Verify file exists and has correct content
	got, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if string(got) != string(testData) {
		t.Errorf("file content = %q, want %q", string(got), string(testData))
	}

	// Verify temp file doesn't exist (atomic write should clean up)
	tmpFile := testFile + ".tmp"
	if _, err := os.Stat(tmpFile); !os.IsNotExist(err) {
		t.Errorf("temp file %q should not exist after atomic write", tmpFile)
	}
}

func TestAtomicWriteReplaces(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.bin")

	if err := os.WriteFile(testFile, []byte("a much longer previous content"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := atomicWrite(testFile, []byte("new")); err != nil {
		t.Fatalf("atomicWrite() error = %v", err)
	}

	got, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "new" {
		t.Errorf("file content = %q, want %q", string(got), "new")
	}
}

func TestAtomicWriteCreatesDir(t *testing.T) {
	tmpDir := t.TempDir()

	// Write to a nested path that doesn't exist
	testFile := filepath.Join(tmpDir, "nested", "dir", "test.txt")
	testData := []byte("nested data")

	if err := atomicWrite(testFile, testData); err != nil {
		t.Fatalf("atomicWrite() error = %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Error("file should exist after atomicWrite")
	}
}

func TestAtomicWriteFailure(t *testing.T) {
	tmpDir := t.TempDir()

	// A regular file where a parent directory is needed
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := atomicWrite(filepath.Join(blocker, "child.bin"), []byte("data"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("atomicWrite() error = %v, want ErrIO", err)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()

	newDir := filepath.Join(tmpDir, "new", "nested", "dir")

	if err := ensureDir(newDir); err != nil {
		t.Fatalf("ensureDir() error = %v", err)
	}

	info, err := os.Stat(newDir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	if !info.IsDir() {
		t.Error("ensureDir() should create a directory")
	}
}

func TestMissingFiles(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "present.bin"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// A directory does not count as a present file
	if err := os.Mkdir(filepath.Join(tmpDir, "dir.bin"), 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	got := missingFiles(tmpDir, []string{"present.bin", "absent.bin", "dir.bin"})
	want := []string{"absent.bin", "dir.bin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("missingFiles() = %v, want %v", got, want)
	}

	if got := missingFiles(tmpDir, []string{"present.bin"}); len(got) != 0 {
		t.Errorf("missingFiles() = %v, want none", got)
	}
}

func TestRemoveFiles(t *testing.T) {
	tmpDir := t.TempDir()

	present := filepath.Join(tmpDir, "present.bin")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := removeFiles(present, filepath.Join(tmpDir, "absent.bin")); err != nil {
		t.Fatalf("removeFiles() error = %v", err)
	}
	if _, err := os.Stat(present); !os.IsNotExist(err) {
		t.Error("file should not exist after removeFiles()")
	}
}

func TestRemoveAll(t *testing.T) {
	tmpDir := t.TempDir()

	dir := filepath.Join(tmpDir, "dataset")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "f"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := removeAll(dir); err != nil {
		t.Fatalf("removeAll() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory should not exist after removeAll()")
	}
}

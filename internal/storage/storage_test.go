package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func writeKey(t *testing.T, s Storage, key, content string) {
	t.Helper()
	w, err := s.Writer(key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readKey(t *testing.T, s Storage, key string) string {
	t.Helper()
	r, err := s.Reader(key)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func backends(t *testing.T) map[string]Storage {
	return map[string]Storage{
		"fs":       NewFSStorage(t.TempDir()),
		"memory":   NewMemoryStorage(),
		"zstd-fs":  NewZSTDStorage(NewFSStorage(t.TempDir())),
		"zstd-mem": NewZSTDStorage(NewMemoryStorage()),
	}
}

func TestStorageRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := "bob_feature/dave_scenario/capture.json"
			writeKey(t, s, key, "hello world")

			if got := readKey(t, s, key); got != "hello world" {
				t.Errorf("expected 'hello world', got %s", got)
			}

			exists, err := s.Exists(key)
			if err != nil || !exists {
				t.Error("exists failed")
			}

			size, err := s.Size(key)
			if err != nil {
				t.Fatal(err)
			}
			if size != int64(len("hello world")) {
				t.Errorf("expected size %d, got %d", len("hello world"), size)
			}

			exists, err = s.Exists("nonexistent/file.txt")
			if err != nil || exists {
				t.Error("should not exist")
			}
		})
	}
}

func TestStorageMissingKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Reader("missing"); !errors.Is(err, ErrNotExist) {
				t.Errorf("Reader: expected ErrNotExist, got %v", err)
			}
			if _, err := s.Size("missing"); !errors.Is(err, ErrNotExist) {
				t.Errorf("Size: expected ErrNotExist, got %v", err)
			}
			if err := s.Delete("missing"); !errors.Is(err, ErrNotExist) {
				t.Errorf("Delete: expected ErrNotExist, got %v", err)
			}
		})
	}
}

func TestStorageListAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			writeKey(t, s, "index/b", "2")
			writeKey(t, s, "index/a", "1")
			writeKey(t, s, "other/c", "3")

			keys, err := s.List("index/")
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(keys, ",") != "index/a,index/b" {
				t.Errorf("unexpected keys %v", keys)
			}

			if err := s.Delete("index/a"); err != nil {
				t.Fatal(err)
			}
			keys, err = s.List("")
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(keys, ",") != "index/b,other/c" {
				t.Errorf("unexpected keys after delete %v", keys)
			}
		})
	}
}

func TestZSTDStorageCompresses(t *testing.T) {
	base := NewMemoryStorage()
	z := NewZSTDStorage(base)

	payload := strings.Repeat("frame-data ", 4096)
	writeKey(t, z, "video.mp4", payload)

	raw, err := base.Size("video.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if raw >= int64(len(payload)) {
		t.Errorf("expected compressed size below %d, got %d", len(payload), raw)
	}

	r, err := z.SeekableReader("video.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.Seek(11, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("frame-data")) {
		t.Errorf("unexpected bytes after seek: %q", buf)
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: "fs", Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FSStorage); !ok {
		t.Errorf("expected *FSStorage, got %T", s)
	}

	s, err = Open(ctx, Options{Backend: "memory", Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*ZSTDStorage); !ok {
		t.Errorf("expected *ZSTDStorage, got %T", s)
	}

	if _, err := Open(ctx, Options{Backend: "tape"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

package storage

import (
	"fmt"
	"io"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
)

// ZSTDStorage wraps another storage with seekable zstd compression.
// Size reports the decompressed size so upload progress stays in payload bytes.
type ZSTDStorage struct {
	storage SeekableStorage
}

func NewZSTDStorage(storage SeekableStorage) *ZSTDStorage {
	return &ZSTDStorage{storage: storage}
}

func (z *ZSTDStorage) Writer(key string) (io.WriteCloser, error) {
	w, err := z.storage.Writer(key)
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		w.Close()
		return nil, err
	}

	seekableWriter, err := seekable.NewWriter(w, encoder)
	if err != nil {
		w.Close()
		encoder.Close()
		return nil, err
	}

	return &zstdWriteCloser{
		seekableWriter: seekableWriter,
		underlying:     w,
		encoder:        encoder,
	}, nil
}

func (z *ZSTDStorage) Reader(key string) (io.ReadCloser, error) {
	return z.SeekableReader(key)
}

func (z *ZSTDStorage) SeekableReader(key string) (ReadSeekCloser, error) {
	r, err := z.storage.SeekableReader(key)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		r.Close()
		return nil, err
	}

	seekableReader, err := seekable.NewReader(r, decoder)
	if err != nil {
		decoder.Close()
		r.Close()
		return nil, fmt.Errorf("failed to open seekable zstd stream %s: %w", key, err)
	}

	return &zstdReadCloser{
		seekableReader: seekableReader,
		underlying:     r,
		decoder:        decoder,
	}, nil
}

func (z *ZSTDStorage) Exists(key string) (bool, error) {
	return z.storage.Exists(key)
}

// Size returns the decompressed size read from the seek table
func (z *ZSTDStorage) Size(key string) (int64, error) {
	r, err := z.SeekableReader(key)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return r.Seek(0, io.SeekEnd)
}

func (z *ZSTDStorage) Delete(key string) error {
	return z.storage.Delete(key)
}

func (z *ZSTDStorage) List(prefix string) ([]string, error) {
	return z.storage.List(prefix)
}

// zstdWriteCloser implements io.WriteCloser with seekable zstd compression
type zstdWriteCloser struct {
	seekableWriter seekable.Writer
	underlying     io.WriteCloser
	encoder        *zstd.Encoder
}

func (w *zstdWriteCloser) Write(p []byte) (n int, err error) {
	return w.seekableWriter.Write(p)
}

func (w *zstdWriteCloser) Close() error {
	// Close seekable writer first to flush and write seek table
	if err := w.seekableWriter.Close(); err != nil {
		w.underlying.Close()
		return err
	}

	w.encoder.Close()

	return w.underlying.Close()
}

// zstdReadCloser implements ReadSeekCloser with seekable zstd decompression
type zstdReadCloser struct {
	seekableReader seekable.Reader
	underlying     io.ReadCloser
	decoder        *zstd.Decoder
}

func (r *zstdReadCloser) Read(p []byte) (n int, err error) {
	return r.seekableReader.Read(p)
}

func (r *zstdReadCloser) Seek(offset int64, whence int) (int64, error) {
	return r.seekableReader.Seek(offset, whence)
}

func (r *zstdReadCloser) Close() error {
	if err := r.seekableReader.Close(); err != nil {
		r.underlying.Close()
		return err
	}

	r.decoder.Close()

	return r.underlying.Close()
}

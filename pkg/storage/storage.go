package storage

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
)

var ErrInvalidName = errors.New("Invalid file name")

// Storage is an abstraction of a blob store (eg a local directory or a GCS bucket)
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// Open picks a backend from a location string.
// "gs://bucket/prefix" is a Google Cloud Storage bucket, and anything else is a directory.
func Open(log logs.Log, location string) (Storage, error) {
	if strings.HasPrefix(location, "gs://") {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
		if bucket == "" {
			return nil, ErrInvalidName
		}
		return NewStorageGCS(log, bucket, prefix)
	}
	return NewStorageFS(log, location)
}

func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

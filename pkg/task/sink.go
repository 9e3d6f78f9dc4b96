package task

import (
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// OpenSink opens path for task output. when path is empty or cannot be created output is discarded,
// the failure is only logged.
func OpenSink(path string, log klog.Logger) io.WriteCloser {
	if path == "" {
		return nopWriteCloser{io.Discard}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error(err, "failed to create output directory, discarding output", "path", path)
		return nopWriteCloser{io.Discard}
	}
	f, err := os.Create(path)
	if err != nil {
		log.Error(err, "failed to open output, discarding output", "path", path)
		return nopWriteCloser{io.Discard}
	}
	return f
}

package image

import "errors"

var (
	ErrKernelNotFound    = errors.New("kernel image not found")
	ErrDownloadFailed    = errors.New("download failed")
	ErrUnknownDistro     = errors.New("unknown distro")
	ErrMissingHostTool   = errors.New("missing required host tool")
	ErrPackagingFailed   = errors.New("image packaging failed")
)

// DownloadFailedError names the URL that could not be fetched.
type DownloadFailedError struct {
	URL   string
	Cause error
}

func (e *DownloadFailedError) Error() string {
	return "download failed: " + e.URL + ": " + e.Cause.Error()
}

func (e *DownloadFailedError) Unwrap() error { return e.Cause }

// MissingHostToolError names a required external program that was not found
// on $PATH.
type MissingHostToolError struct {
	Name string
}

func (e *MissingHostToolError) Error() string {
	return "missing host tool: " + e.Name
}

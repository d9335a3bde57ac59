package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/imaging"
)

// FrameSource produces frames until io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// DirectorySource replays still images from a directory in file name
// order, optionally paced to a fixed interval.
type DirectorySource struct {
	files    []string
	idx      int
	interval time.Duration
}

// NewDirectorySource lists the supported images under dir. With a
// positive interval, Next waits that long between frames.
func NewDirectorySource(dir string, interval time.Duration) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read frame directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	return &DirectorySource{files: files, interval: interval}, nil
}

// Len reports how many frames the source will produce.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

func (s *DirectorySource) Next(ctx context.Context) (image.Image, error) {
	if s.idx >= len(s.files) {
		return nil, io.EOF
	}
	if s.interval > 0 && s.idx > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}

	path := s.files[s.idx]
	s.idx++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read frame %s: %w", path, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("could not decode frame %s: %w", path, err)
	}
	return img, nil
}

func (s *DirectorySource) Close() error {
	return nil
}

// MJPEGSource reads frames from an HTTP multipart/x-mixed-replace
// stream, the format IP cameras commonly serve.
type MJPEGSource struct {
	resp   *http.Response
	reader *multipart.Reader
}

// NewMJPEGSource connects to an MJPEG stream URL. The context covers
// the whole lifetime of the stream; cancelling it ends the source.
func NewMJPEGSource(ctx context.Context, url string) (*MJPEGSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not build stream request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream error (status %d): %s", resp.StatusCode, string(body))
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("not an MJPEG stream (content type %q)", resp.Header.Get("Content-Type"))
	}
	boundary := params["boundary"]
	if boundary == "" {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("MJPEG stream without part boundary")
	}

	return &MJPEGSource{resp: resp, reader: multipart.NewReader(resp.Body, boundary)}, nil
}

func (s *MJPEGSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	part, err := s.reader.NextPart()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("could not read stream part: %w", err)
	}
	data, err := io.ReadAll(part)
	_ = part.Close()
	if err != nil {
		return nil, fmt.Errorf("could not read frame data: %w", err)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("could not decode stream frame: %w", err)
	}
	return img, nil
}

func (s *MJPEGSource) Close() error {
	return s.resp.Body.Close()
}

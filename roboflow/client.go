// Package roboflow downloads dataset versions from the Roboflow export API.
package roboflow

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"BoardKP/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.roboflow.com"
	DefaultFormat  = "yolov8"
	TimeOutSeconds = 60
	pollInterval   = 2 * time.Second
)

var (
	// ErrMissingAPIKey is returned when neither flag nor environment provide a key.
	ErrMissingAPIKey = errors.New("missing API key, set ROBOFLOW_API_KEY or pass --api-key")
	// ErrExportNotReady is returned when the export link did not appear before the deadline.
	ErrExportNotReady = errors.New("export not ready")
)

// Dataset identifies one dataset version.
type Dataset struct {
	Workspace string `validate:"required"`
	Project   string `validate:"required"`
	Version   int    `validate:"gte=1"`
	Format    string `validate:"required"`
}

type exportResponse struct {
	Export struct {
		Link string `json:"link"`
	} `json:"export"`
	Progress float64 `json:"progress"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the export API.
type Client struct {
	apiKey  string
	baseURL string
	http    *resty.Client
	// ReadyTimeout bounds the wait for a pending export.
	ReadyTimeout time.Duration
}

// NewClient returns a client for apiKey; baseURL "" uses DefaultBaseURL.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         resty.New().SetTimeout(TimeOutSeconds * time.Second).SetRetryCount(2),
		ReadyTimeout: 5 * time.Minute,
	}, nil
}

// ExportLink asks the API to prepare ds and returns the zip link, polling while the export is
// being generated.
func (c *Client) ExportLink(ctx context.Context, ds Dataset) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/%d/%s", c.baseURL, ds.Workspace, ds.Project, ds.Version, ds.Format)
	deadline := time.Now().Add(c.ReadyTimeout)
	for {
		var body exportResponse
		var apiErr errorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("api_key", c.apiKey).
			SetResult(&body).
			SetError(&apiErr).
			Get(url)
		if err != nil {
			return "", fmt.Errorf("request export: %w", err)
		}
		if resp.IsError() {
			msg := apiErr.Error.Message
			if msg == "" {
				msg = resp.String()
			}
			return "", fmt.Errorf("export API returned %s: %s", resp.Status(), msg)
		}
		if body.Export.Link != "" {
			return body.Export.Link, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s (progress %.0f%%)", ErrExportNotReady, c.ReadyTimeout, body.Progress*100)
		}
		logger.Log().Debug("export pending", zap.Float64("progress", body.Progress))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Download fetches ds and extracts it into out, returning out.
func (c *Client) Download(ctx context.Context, ds Dataset, out string) (string, error) {
	log := logger.Named("roboflow")
	link, err := c.ExportLink(ctx, ds)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "roboflow-*.zip")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	log.Info("downloading dataset", zap.String("project", ds.Project), zap.Int("version", ds.Version))
	resp, err := c.http.R().SetContext(ctx).SetOutput(tmpPath).Get(link)
	if err != nil {
		return "", fmt.Errorf("download export: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download returned %s", resp.Status())
	}
	n, err := Extract(tmpPath, out)
	if err != nil {
		return "", err
	}
	log.Info("extracted dataset", zap.Int("files", n), zap.String("out", out))
	return out, nil
}

// Extract unpacks the zip at path into dir and returns the number of files written. Entries
// escaping dir are rejected.
func Extract(path, dir string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return n, fmt.Errorf("archive entry %q escapes %s", f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return n, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	w, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return w.Close()
}

package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/pkg/httpx"
)

type dataset struct {
	Title     string     `json:"title"`
	Resources []resource `json:"resources"`
}

type resource struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

// DatasetDownloader fetches the CSV resource of a data.gouv.fr dataset.
type DatasetDownloader struct {
	datasetAPI string
	dir        string
	client     *http.Client
	logger     *slog.Logger
}

func NewDatasetDownloader(datasetAPI, dir string, client *http.Client, logger *slog.Logger) *DatasetDownloader {
	if client == nil {
		client = httpx.NewClient(5 * time.Minute)
	}
	return &DatasetDownloader{
		datasetAPI: datasetAPI,
		dir:        dir,
		client:     client,
		logger:     logger.With("component", "datagouv_downloader"),
	}
}

// Download resolves the dataset's CSV resource and saves it under dir, returning the file path.
func (d *DatasetDownloader) Download(ctx context.Context) (string, error) {
	var ds dataset
	err := httpx.Retry(ctx, 3, 2*time.Second, 10*time.Second, func() error {
		return d.getJSON(ctx, d.datasetAPI, &ds)
	})
	if err != nil {
		return "", fmt.Errorf("fetch dataset metadata: %w", err)
	}

	res, ok := pickCSV(ds.Resources)
	if !ok {
		return "", fmt.Errorf("dataset %q has no CSV resource", ds.Title)
	}
	d.logger.Info("Downloading dataset resource", "dataset", ds.Title, "resource", res.Title, "url", res.URL)

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	dest := filepath.Join(d.dir, resourceFileName(res))

	err = httpx.Retry(ctx, 3, 2*time.Second, 10*time.Second, func() error {
		return d.download(ctx, res.URL, dest)
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", res.URL, err)
	}
	return dest, nil
}

// pickCSV prefers a resource declared as CSV, then one whose URL looks like an export.
func pickCSV(resources []resource) (resource, bool) {
	for _, r := range resources {
		if strings.EqualFold(strings.TrimSpace(r.Format), "csv") && r.URL != "" {
			return r, true
		}
	}
	for _, r := range resources {
		u := strings.ToLower(r.URL)
		if strings.Contains(u, "csv") || strings.Contains(u, "export") {
			return r, true
		}
	}
	return resource{}, false
}

func resourceFileName(r resource) string {
	if u, err := url.Parse(r.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			return base
		}
	}
	if r.ID != "" {
		return r.ID + ".csv"
	}
	return "dataset.csv"
}

func (d *DatasetDownloader) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &httpx.Permanent{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (d *DatasetDownloader) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return &httpx.Permanent{Err: err}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return &httpx.Permanent{Err: err}
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return &httpx.Permanent{Err: err}
	}
	d.logger.Info("Saved dataset", "path", dest, "bytes", n)
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s returned %d: %s", resp.Request.URL, resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &httpx.Permanent{Err: err}
	}
	return err
}

package scan

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// fetchArchive downloads the branch zip into dir and returns the archive
// path. A 404 on branch "main" retries "master" once; any other failure
// fails the scan.
func (o *Orchestrator) fetchArchive(ctx context.Context, dir, repo, branch string) (string, error) {
	if branch == "" {
		branch = "main"
	}

	path, err := o.downloadZip(ctx, dir, repo, branch)
	if err != nil {
		var nf *notFoundError
		if branch == "main" && errors.As(err, &nf) {
			o.log.Info("branch main not found, trying master", "repo", repo)
			return o.downloadZip(ctx, dir, repo, "master")
		}
		return "", err
	}
	return path, nil
}

type notFoundError struct{ url string }

func (e *notFoundError) Error() string { return "archive not found: " + e.url }

func (o *Orchestrator) downloadZip(ctx context.Context, dir, repo, branch string) (string, error) {
	url := fmt.Sprintf("%s/%s/archive/refs/heads/%s.zip",
		strings.TrimRight(o.archiveBaseURL, "/"), repo, branch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &notFoundError{url: url}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download archive: status %d for %s", resp.StatusCode, url)
	}

	path := filepath.Join(dir, "repo.zip")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

// extractZip unpacks the archive under dir/src, rejecting entries that would
// escape the destination.
func extractZip(archivePath, dir string) (string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	dest := filepath.Join(dir, "src")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := sanitizePath(f.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return "", err
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return "", err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return dest, nil
}

// sanitizePath normalizes a zip entry path and rejects traversal.
func sanitizePath(name string) string {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "/")
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return ""
	}
	return clean
}

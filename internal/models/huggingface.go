// Package models talks to the Hugging Face Hub and fetches the ONNX model
// files the evaluator runs.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/security"
)

// DefaultHubURL is the public Hugging Face Hub.
const DefaultHubURL = "https://huggingface.co"

// RepoType selects the Hub namespace of a repository.
type RepoType string

const (
	RepoTypeModel   RepoType = "model"
	RepoTypeDataset RepoType = "dataset"
)

// HubClient provides access to the Hugging Face Hub API.
type HubClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHubClient creates a Hub client. An empty token sends anonymous requests.
func NewHubClient(baseURL, token string) *HubClient {
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	return &HubClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // shards and models are large
		},
	}
}

// WhoAmI is the account a token belongs to.
type WhoAmI struct {
	Name     string `json:"name"`
	FullName string `json:"fullname"`
	Type     string `json:"type"`
}

// WhoAmI verifies the token against the Hub.
func (c *HubClient) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	if c.token == "" {
		return nil, errors.ValidationError("a Hugging Face token is required")
	}

	req, err := c.newRequest(ctx, c.baseURL+"/api/whoami-v2")
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.DownloadError("failed to reach the Hub", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.ValidationError("invalid Hugging Face token")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.DownloadError(fmt.Sprintf("whoami failed with status %d", resp.StatusCode), nil)
	}

	var who WhoAmI
	if err := json.NewDecoder(resp.Body).Decode(&who); err != nil {
		return nil, errors.DownloadError("failed to decode whoami response", err)
	}
	return &who, nil
}

// FileURL returns the download URL of a file on the main revision.
func (c *HubClient) FileURL(repoType RepoType, repo, file string) string {
	if repoType == RepoTypeDataset {
		return fmt.Sprintf("%s/datasets/%s/resolve/main/%s", c.baseURL, repo, file)
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", c.baseURL, repo, file)
}

// DownloadFile downloads a repository file to destPath. The body is written
// to destPath+".part" and renamed on success, so destPath only ever holds a
// complete file. onProgress, if set, receives the bytes read so far and the
// expected total (-1 when unknown).
func (c *HubClient) DownloadFile(ctx context.Context, repoType RepoType, repo, file, destPath string, onProgress func(downloaded, total int64)) (int64, error) {
	if err := security.ValidateRepoID(repo); err != nil {
		return 0, errors.Wrap(errors.CodeValidation, "invalid repository", err)
	}
	if err := security.ValidateRepoPath(file); err != nil {
		return 0, errors.Wrap(errors.CodeValidation, "invalid repository file", err)
	}

	req, err := c.newRequest(ctx, c.FileURL(repoType, repo, file))
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.DownloadError("failed to download "+file, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errors.NotFoundError(fmt.Sprintf("%s in %s", file, repo))
	case resp.StatusCode != http.StatusOK:
		return 0, errors.DownloadError(fmt.Sprintf("download of %s failed with status %d", file, resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, errors.IOError("failed to create directory for "+destPath, err)
	}

	part := destPath + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, errors.IOError("failed to create "+part, err)
	}

	reader := &progressReader{reader: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	written, err := io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return written, errors.DownloadError("failed to write "+file, err)
	}

	if err := os.Rename(part, destPath); err != nil {
		_ = os.Remove(part)
		return written, errors.IOError("failed to move "+part, err)
	}
	return written, nil
}

func (c *HubClient) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.InternalError("failed to create request", err)
	}
	req.Header.Set("User-Agent", "fitbench/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// progressReader wraps an io.Reader to report progress.
type progressReader struct {
	reader     io.Reader
	read       int64
	total      int64
	onProgress func(downloaded, total int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.onProgress != nil {
			r.onProgress(r.read, r.total)
		}
	}
	return n, err
}

// Package hub downloads files from HuggingFace Hub model repositories, with a local cache.
//
// Example:
//
//	repo := hub.New("facebook/bart-large").WithAuth(os.Getenv("HF_TOKEN"))
//	path, err := repo.DownloadFile("tokenizer.json")
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gomlx/dialogsum/internal/files"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultEndpoint of the HuggingFace Hub.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the branch used when no revision is given.
	DefaultRevision = "main"

	// DefaultDirCreationPerm is used when creating cache directories.
	DefaultDirCreationPerm = 0o755
)

// DefaultCacheDir returns the HuggingFace cache directory: $HF_HUB_CACHE, $HF_HOME/hub, or
// ~/.cache/huggingface/hub.
func DefaultCacheDir() string {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return files.ExpandHome(dir)
	}
	if dir := os.Getenv("HF_HOME"); dir != "" {
		return filepath.Join(files.ExpandHome(dir), "hub")
	}
	return files.ExpandHome("~/.cache/huggingface/hub")
}

// Repo is a model repository in the HuggingFace Hub. Create it with New and configure it with
// the With* methods before downloading.
type Repo struct {
	// ID of the repository, e.g. "facebook/bart-large".
	ID string

	// Endpoint of the Hub, DefaultEndpoint by default.
	Endpoint string

	revision  string
	authToken string
	cacheDir  string
	client    *retryablehttp.Client

	mu        sync.Mutex
	fileNames []string
}

// New creates a Repo for the given repository id. The authentication token is taken from
// $HF_TOKEN, if set.
func New(id string) *Repo {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.RetryWaitMax = 10 * time.Second
	client.Logger = retryLogger{}
	return &Repo{
		ID:        id,
		Endpoint:  DefaultEndpoint,
		revision:  DefaultRevision,
		authToken: os.Getenv("HF_TOKEN"),
		cacheDir:  DefaultCacheDir(),
		client:    client,
	}
}

// WithAuth sets the token used to access private or gated repositories.
func (r *Repo) WithAuth(token string) *Repo {
	r.authToken = token
	return r
}

// WithRevision sets the branch, tag or commit to download from.
func (r *Repo) WithRevision(revision string) *Repo {
	r.revision = revision
	r.fileNames = nil
	return r
}

// WithCacheDir sets the directory where downloaded files are stored.
func (r *Repo) WithCacheDir(dir string) *Repo {
	r.cacheDir = files.ExpandHome(dir)
	return r
}

// WithEndpoint sets the Hub endpoint, for mirrors.
func (r *Repo) WithEndpoint(endpoint string) *Repo {
	r.Endpoint = strings.TrimSuffix(endpoint, "/")
	r.fileNames = nil
	return r
}

// String implements fmt.Stringer.
func (r *Repo) String() string {
	if r.revision == DefaultRevision {
		return r.ID
	}
	return fmt.Sprintf("%s@%s", r.ID, r.revision)
}

// repoCacheDir is the directory holding the files of the repository's revision.
func (r *Repo) repoCacheDir() string {
	name := "models--" + strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(r.cacheDir, name, "snapshots", r.revision)
}

// localPath of a repository file in the cache.
func (r *Repo) localPath(fileName string) string {
	return filepath.Join(r.repoCacheDir(), filepath.FromSlash(fileName))
}

// fileURL of a repository file in the Hub.
func (r *Repo) fileURL(fileName string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", r.Endpoint, r.ID, url.PathEscape(r.revision), fileName)
}

// newRequest creates an authenticated request.
func (r *Repo) newRequest(ctx context.Context, method, url string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %q", url)
	}
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}
	return req, nil
}

// repoInfo is the part of the Hub's model API response listing the files.
type repoInfo struct {
	Siblings []struct {
		RFileName string `json:"rfilename"`
	} `json:"siblings"`
}

// listFiles fetches (once) the names of the files in the repository.
func (r *Repo) listFiles(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fileNames != nil {
		return r.fileNames, nil
	}
	infoURL := fmt.Sprintf("%s/api/models/%s/revision/%s", r.Endpoint, r.ID, url.PathEscape(r.revision))
	req, err := r.newRequest(ctx, http.MethodGet, infoURL)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of %s", r)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to list files of %s: %s", r, resp.Status)
	}
	var info repoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse file list of %s", r)
	}
	names := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		names = append(names, s.RFileName)
	}
	klog.V(2).Infof("hub: %s has %d files", r, len(names))
	r.fileNames = names
	return names, nil
}

// IterFileNames iterates over the names of the files in the repository.
// An error listing the files is yielded once, with an empty name.
func (r *Repo) IterFileNames() func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		names, err := r.listFiles(context.Background())
		if err != nil {
			yield("", err)
			return
		}
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// HasFile returns whether the repository has the file. A file already in the local cache is
// found without contacting the Hub.
func (r *Repo) HasFile(fileName string) bool {
	if files.Exists(r.localPath(fileName)) {
		return true
	}
	for name, err := range r.IterFileNames() {
		if err != nil {
			klog.Warningf("hub: %+v", err)
			return false
		}
		if name == fileName {
			return true
		}
	}
	return false
}

// DownloadFile returns the local path to the repository file, downloading it first if it is
// not in the cache yet.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileContext(context.Background(), fileName)
}

// DownloadFileContext is like DownloadFile, with a context to cancel the download.
func (r *Repo) DownloadFileContext(ctx context.Context, fileName string) (string, error) {
	filePath := r.localPath(fileName)
	if err := r.lockedDownload(ctx, r.fileURL(fileName), filePath, false); err != nil {
		return "", err
	}
	return filePath, nil
}

// retryLogger routes retryablehttp's logging to klog.
type retryLogger struct{}

func (retryLogger) Printf(format string, args ...any) {
	klog.V(2).Infof("hub: "+format, args...)
}

/*
Copyright © 2021 the OceanVal authors.
This file is part of OceanVal.

OceanVal is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVal is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVal.  If not, see <http://www.gnu.org/licenses/>.
*/

package obs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/ctessum/requestcache"
	"github.com/oceanmodel/oceanval"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// DefaultBaseURL is the root of the public observation archive.
const DefaultBaseURL = "https://noc-msm-o.s3-ext.jc.rl.ac.uk/npd-obs"

// Store fetches observation datasets by archive path. Downloaded files
// are kept in a local directory so each object is only transferred
// once, and decoded datasets are additionally cached in memory.
type Store struct {
	// BaseURL is the archive root that relative dataset paths are
	// resolved against. If it is empty, DefaultBaseURL is used.
	BaseURL string

	// CacheDir is the directory that downloaded files are stored in.
	// If it is empty, a directory within the system temporary
	// directory is used.
	CacheDir string

	// CacheSize is the number of decoded datasets to hold in memory.
	// If it is zero, a default of 20 will be used.
	CacheSize int

	// Client is the HTTP client used for downloads. If it is nil,
	// http.DefaultClient is used.
	Client *http.Client

	cache    *requestcache.Cache
	initOnce sync.Once
}

// NewStore creates a new Store for the archive rooted at baseURL,
// where an empty baseURL selects the public archive at DefaultBaseURL.
func NewStore(baseURL string) *Store {
	return &Store{BaseURL: baseURL}
}

// Dataset returns the dataset stored at path. path may be relative to
// the archive root, an absolute http(s), gs, s3, or file URL, or the
// name of a local file. The returned dataset is a private copy that
// the caller may modify.
func (st *Store) Dataset(ctx context.Context, path string) (*oceanval.Dataset, error) {
	st.initOnce.Do(func() {
		if st.CacheSize == 0 {
			st.CacheSize = 20
		}
		st.cache = requestcache.NewCache(st.fetch, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(st.CacheSize))
	})
	req := st.cache.NewRequest(ctx, path, path)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*oceanval.Dataset).Copy(), nil
}

// fetch downloads and decodes one dataset. It has the signature
// required by requestcache.NewCache.
func (st *Store) fetch(ctx context.Context, request interface{}) (interface{}, error) {
	file, err := st.localFile(ctx, request.(string))
	if err != nil {
		return nil, err
	}
	d, err := oceanval.ReadDatasetFile(file)
	if err != nil {
		return nil, fmt.Errorf("obs: reading %s: %v", file, err)
	}
	return d, nil
}

// localFile returns the name of a local file holding the contents of
// path, downloading it first when necessary.
func (st *Store) localFile(ctx context.Context, path string) (string, error) {
	if !strings.Contains(path, "://") {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		base := st.BaseURL
		if base == "" {
			base = DefaultBaseURL
		}
		if !strings.HasSuffix(path, ".nc") {
			path += ".nc"
		}
		path = strings.TrimSuffix(base, "/") + "/" + path
	}
	dst, err := st.cachePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("obs: parsing URL %s: %v", path, err)
	}
	switch u.Scheme {
	case "http", "https":
		err = st.downloadHTTP(ctx, path, dst)
	default:
		err = st.downloadBlob(ctx, u, dst)
	}
	if err != nil {
		return "", err
	}
	return dst, nil
}

// cachePath returns the name of the local file that the contents of
// url are cached in.
func (st *Store) cachePath(url string) (string, error) {
	dir := st.CacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "oceanval-obs")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("obs: creating download directory: %v", err)
	}
	name := strings.NewReplacer("://", "_", "/", "_", ":", "_").Replace(url)
	return filepath.Join(dir, name), nil
}

func (st *Store) downloadHTTP(ctx context.Context, url, dst string) error {
	c := st.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("obs: downloading %s: %v", url, err)
	}
	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("obs: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("obs: downloading %s: %s", url, resp.Status)
	}
	return writeFile(dst, resp.Body)
}

func (st *Store) downloadBlob(ctx context.Context, u *url.URL, dst string) error {
	bucket, err := openBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return err
	}
	r, err := bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"), nil)
	if err != nil {
		return fmt.Errorf("obs: downloading %s: %v", u, err)
	}
	defer r.Close()
	return writeFile(dst, r)
}

// writeFile copies r to a new file named dst, removing the file again
// if the copy fails so that partial downloads are not cached.
func writeFile(dst string, r io.Reader) error {
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("obs: creating download file: %v", err)
	}
	_, err = io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("obs: writing %s: %v", dst, err)
	}
	return nil
}

// openBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local
// filesystem (e.g., for testing), "gs" for Google Cloud Storage, and
// "s3" for AWS S3.
func openBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	url, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("obs: opening bucket %s: %v", bucketName, err)
	}
	switch url.Scheme {
	case "file":
		return fileblob.OpenBucket(url.Hostname(), nil)
	case "gs":
		return gsBucket(ctx, url.Hostname())
	case "s3":
		return s3Bucket(ctx, url.Hostname())
	default:
		return nil, fmt.Errorf("obs: invalid storage provider %s", url.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s := session.Must(session.NewSession(c))
	return s3blob.OpenBucket(ctx, s, name, nil)
}

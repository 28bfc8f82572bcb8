// Package docsource resolves document references (local paths, file://,
// http(s):// and s3:// URLs) to a local PDF file.
package docsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Document is a resolved local file. Cleanup removes any temp copy and is
// safe to call on local files.
type Document struct {
	Ref     string
	Path    string
	Pages   int
	cleanup func()
}

// Cleanup releases temp files created by Fetch.
func (d *Document) Cleanup() {
	if d.cleanup != nil {
		d.cleanup()
		d.cleanup = nil
	}
}

// Options configures remote fetches.
type Options struct {
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Fetcher downloads remote documents to temp files and validates them.
type Fetcher struct {
	opts Options
}

// NewFetcher creates a Fetcher. A zero Timeout means two minutes.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{opts: opts}
}

// Fetch resolves ref to a validated local PDF with its page count. An
// optional #fragment is ignored.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Document, error) {
	clean := ref
	if i := strings.Index(clean, "#"); i >= 0 {
		clean = clean[:i]
	}

	doc := &Document{Ref: ref}
	var err error
	switch {
	case strings.HasPrefix(clean, "s3://"):
		doc.Path, err = f.downloadS3(ctx, clean)
		doc.cleanup = removeFunc(doc.Path)
	case strings.HasPrefix(clean, "http://") || strings.HasPrefix(clean, "https://"):
		doc.Path, err = f.downloadHTTP(ctx, clean)
		doc.cleanup = removeFunc(doc.Path)
	case strings.HasPrefix(clean, "file://"):
		doc.Path = strings.TrimPrefix(clean, "file://")
	default:
		doc.Path = clean
	}
	if err != nil {
		doc.Cleanup()
		return nil, err
	}

	if err := RequirePDF(doc.Path); err != nil {
		doc.Cleanup()
		return nil, err
	}
	n, err := PageCount(doc.Path)
	if err != nil {
		doc.Cleanup()
		return nil, err
	}
	doc.Pages = n
	zerolog.Ctx(ctx).Info().Str("ref", ref).Str("path", doc.Path).Int("pages", n).Msg("document resolved")
	return doc, nil
}

func removeFunc(path string) func() {
	return func() {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}

func (f *Fetcher) downloadHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: http %d", url, resp.StatusCode)
	}
	tmp, err := os.CreateTemp("", "newsdigest-*.pdf")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return tmp.Name(), nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(u string) (bucket, key string, err error) {
	path := strings.TrimPrefix(u, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", u)
	}
	return path[:slash], path[slash+1:], nil
}

func (f *Fetcher) downloadS3(ctx context.Context, u string) (string, error) {
	bucket, key, err := ParseS3URL(u)
	if err != nil {
		return "", err
	}

	var loadOpts []func(*awscfg.LoadOptions) error
	if f.opts.AWSRegion != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(f.opts.AWSRegion))
	}
	if f.opts.AWSAccessKey != "" && f.opts.AWSSecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.opts.AWSAccessKey, f.opts.AWSSecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "newsdigest-s3-*.pdf")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	downloader := manager.NewDownloader(s3.NewFromConfig(cfg))
	n, err := downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download from S3: %w", err)
	}
	zerolog.Ctx(ctx).Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", n).
		Str("file", filepath.Base(tmp.Name())).
		Msg("downloaded s3 pdf to temp")
	return tmp.Name(), nil
}

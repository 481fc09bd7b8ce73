package pkgindex_http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Publisher uploads built distribution files (sdist tarballs and wheels) to
// a package index. Transient transport failures are retried; the stage-level
// failure policy stays retry-free, this only smooths over flaky connections
// to the index.
type Publisher struct {
	url      string
	username string
	password string
	hc       *http.Client
}

func New(url, username, password string, timeout time.Duration) *Publisher {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Publisher{
		url:      url,
		username: username,
		password: password,
		hc:       &http.Client{Transport: tr, Timeout: timeout},
	}
}

// Publish uploads every *.tar.gz and *.whl under distDir and returns the
// number of files uploaded, including the ones that made it before a
// mid-batch failure. An empty dist directory is an error: a publish stage
// that built nothing has gone wrong upstream.
func (p *Publisher) Publish(ctx context.Context, distDir string) (int, error) {
	files, err := distFiles(distDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no distribution files in %s", distDir)
	}

	uploaded := 0
	for _, f := range files {
		if err := p.uploadFile(ctx, f); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", filepath.Base(f), err)
		}
		uploaded++
	}
	return uploaded, nil
}

func (p *Publisher) uploadFile(ctx context.Context, file string) error {
	var retryAfter time.Duration

	op := func() error {
		body, contentType, err := multipartBody(file)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.SetBasicAuth(p.username, p.password)

		resp, err := p.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, _ := strconv.Atoi(ra); sec > 0 {
					retryAfter = time.Duration(sec) * time.Second
				}
			}
			return fmt.Errorf("index %s", resp.Status)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("index %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("index %s", resp.Status))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 15 * time.Second

	hinted := &serverHintBackOff{BackOff: bo, hint: &retryAfter}
	return backoff.Retry(op, backoff.WithContext(hinted, ctx))
}

// serverHintBackOff stretches the next wait to honor a server-requested
// Retry-After delay so the hint and the exponential interval do not stack.
type serverHintBackOff struct {
	backoff.BackOff
	hint *time.Duration
}

func (b *serverHintBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	if *b.hint > d {
		d = *b.hint
	}
	*b.hint = 0
	return d
}

func multipartBody(file string) (io.Reader, string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	_ = w.WriteField(":action", "file_upload")
	_ = w.WriteField("protocol_version", "1")

	fw, err := w.CreateFormFile("content", filepath.Base(file))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func distFiles(dir string) ([]string, error) {
	var files []string
	for _, pat := range []string{"*.tar.gz", "*.whl"} {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

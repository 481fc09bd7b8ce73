package report_scp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"
)

// Uploader pushes a report directory to a remote host with the system scp.
// The remote directory is keyed by the release tag:
// <host>:<base_path>/<tag>/.
type Uploader struct {
	host    string
	base    string
	timeout time.Duration
	soft    bool
}

func New(host, base string, timeout time.Duration) *Uploader {
	return &Uploader{host: host, base: base, timeout: timeout}
}

func NewSoft(host, base string, timeout time.Duration) *Uploader {
	return &Uploader{host: host, base: base, timeout: timeout, soft: true}
}

func (u *Uploader) Upload(ctx context.Context, localDir, tag string) error {
	if strings.TrimSpace(localDir) == "" {
		return errors.New("empty report directory")
	}
	if strings.TrimSpace(tag) == "" {
		return errors.New("report upload requires a tag")
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	remote := u.host + ":" + path.Join(u.base, tag)

	cmd := exec.CommandContext(ctx, "scp", "-r", localDir, remote)
	if out, err := cmd.CombinedOutput(); err != nil {
		if u.soft {
			return nil
		}
		return fmt.Errorf("scp %s -> %s: %w: %s", localDir, remote, err, strings.TrimSpace(string(out)))
	}
	return nil
}

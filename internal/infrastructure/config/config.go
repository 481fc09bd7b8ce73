package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/davarch/ci-runner/internal/domain"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes the "30m"/"4h" form in
// YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type GateConfig struct {
	Branch string `yaml:"branch,omitempty"`
	Tag    string `yaml:"tag,omitempty"`
}

type ReportAction struct {
	Dir string `yaml:"dir"`
}

type PublishAction struct {
	Dist string `yaml:"dist"`
}

type StageConfig struct {
	Name      string               `yaml:"name"`
	Run       []string             `yaml:"run,omitempty"`
	Env       map[string]string    `yaml:"env,omitempty"`
	Artifacts []string             `yaml:"artifacts,omitempty"`
	When      GateConfig           `yaml:"when,omitempty"`
	Tolerate  domain.FailurePolicy `yaml:"tolerate,omitempty"`
	Timeout   Duration             `yaml:"timeout,omitempty"`
	Always    bool                 `yaml:"always,omitempty"`
	Report    *ReportAction        `yaml:"report,omitempty"`
	Publish   *PublishAction       `yaml:"publish,omitempty"`
}

type Config struct {
	Workspace string `yaml:"workspace"`
	Archive   string `yaml:"archive"`

	Report struct {
		Host     string   `yaml:"host"`
		BasePath string   `yaml:"base_path"`
		Timeout  Duration `yaml:"timeout"`
	} `yaml:"report"`

	PkgIndex struct {
		URL      string   `yaml:"url"`
		Timeout  Duration `yaml:"timeout"`
		Username string   `yaml:"-"`
		Password string   `yaml:"-"`
	} `yaml:"pkgindex"`

	Env map[string]string `yaml:"env,omitempty"`

	Stages []StageConfig `yaml:"stages"`
}

func Load(path string) (Config, error) {
	var c Config

	c.Workspace = "."
	c.Archive = ".ci/artifacts"
	c.Report.Timeout = Duration(2 * time.Minute)
	c.PkgIndex.Timeout = Duration(2 * time.Minute)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("CI_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("CI_ARCHIVE"); v != "" {
		c.Archive = v
	}
	if v := os.Getenv("REPORT_SERVER"); v != "" {
		c.Report.Host = v
	}
	if v := os.Getenv("REPORT_BASE_PATH"); v != "" {
		c.Report.BasePath = v
	}
	if v := os.Getenv("PKGINDEX_URL"); v != "" {
		c.PkgIndex.URL = v
	}

	// Credentials come from the environment only and are never written back
	// by Save.
	c.PkgIndex.Username = os.Getenv("PKGINDEX_USERNAME")
	c.PkgIndex.Password = os.Getenv("PKGINDEX_PASSWORD")

	if c.Report.Timeout <= 0 {
		c.Report.Timeout = Duration(2 * time.Minute)
	}
	if c.PkgIndex.Timeout <= 0 {
		c.PkgIndex.Timeout = Duration(2 * time.Minute)
	}

	if len(c.Stages) == 0 {
		return c, errors.New("no stages configured")
	}
	return c, c.validate()
}

func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Stages))
	for _, s := range c.Stages {
		if s.Name == "" {
			return errors.New("stage without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage %q", s.Name)
		}
		seen[s.Name] = true

		g := domain.Gate{Branch: s.When.Branch, TagPattern: s.When.Tag}
		if err := g.Compile(); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}

		switch s.Tolerate {
		case "", domain.FailAbort, domain.FailTolerateTests, domain.FailIgnore:
		default:
			return fmt.Errorf("stage %q: unknown tolerate policy %q", s.Name, s.Tolerate)
		}

		if s.Publish != nil && c.PkgIndex.URL == "" {
			return fmt.Errorf("stage %q publishes but no package index URL is configured", s.Name)
		}
		if s.Report != nil && c.Report.Host == "" {
			return fmt.Errorf("stage %q uploads a report but no report host is configured", s.Name)
		}
	}
	return nil
}

// DomainStages maps the file representation onto the domain model. Gates are
// compiled; Load has already validated them.
func (c Config) DomainStages() ([]domain.Stage, error) {
	out := make([]domain.Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		st := domain.Stage{
			Name:      s.Name,
			Commands:  s.Run,
			Env:       s.Env,
			Artifacts: s.Artifacts,
			When:      domain.Gate{Branch: s.When.Branch, TagPattern: s.When.Tag},
			Tolerate:  s.Tolerate,
			Timeout:   time.Duration(s.Timeout),
			Always:    s.Always,
		}
		if err := st.When.Compile(); err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		if s.Report != nil {
			st.Report = &domain.ReportSpec{
				Dir:      s.Report.Dir,
				Host:     c.Report.Host,
				BasePath: c.Report.BasePath,
			}
		}
		if s.Publish != nil {
			st.Publish = &domain.PublishSpec{
				DistDir:  s.Publish.Dist,
				IndexURL: c.PkgIndex.URL,
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

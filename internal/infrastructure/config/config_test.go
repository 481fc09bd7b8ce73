package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davarch/ci-runner/internal/domain"
)

const sampleYAML = `
workspace: /work
archive: /work/.ci

report:
  host: ci@reports.example.com
  base_path: /var/www/reports

pkgindex:
  url: https://upload.example.org/legacy/

stages:
  - name: provision
    run:
      - pip install .
  - name: api-test
    run:
      - pytest -k 'not full_train and not Wrapper'
    tolerate: tests
    artifacts:
      - report/*.html
      - coverage.xml
  - name: deploy-package
    when:
      tag: release
    run:
      - python setup.py sdist bdist_wheel
    publish:
      dist: dist
  - name: cleanup
    run:
      - rm -rf build
    always: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FromYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	os.Setenv("PKGINDEX_URL", "https://upload.env.example/legacy/")
	os.Setenv("PKGINDEX_USERNAME", "bot")
	os.Setenv("PKGINDEX_PASSWORD", "secret")
	defer func() {
		os.Unsetenv("PKGINDEX_URL")
		os.Unsetenv("PKGINDEX_USERNAME")
		os.Unsetenv("PKGINDEX_PASSWORD")
	}()

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.PkgIndex.URL != "https://upload.env.example/legacy/" {
		t.Errorf("env override failed, got %s", c.PkgIndex.URL)
	}
	if c.PkgIndex.Username != "bot" || c.PkgIndex.Password != "secret" {
		t.Error("credentials must come from env")
	}
	if len(c.Stages) != 4 {
		t.Errorf("expected 4 stages, got %d", len(c.Stages))
	}
}

func TestLoad_RejectsBrokenPipelines(t *testing.T) {
	cases := map[string]string{
		"no stages":       "workspace: /work\n",
		"unnamed stage":   "stages:\n  - run: [true]\n",
		"duplicate stage": "stages:\n  - name: a\n  - name: a\n",
		"bad tag pattern": "stages:\n  - name: a\n    when:\n      tag: '('\n",
		"bad policy":      "stages:\n  - name: a\n    tolerate: sometimes\n",
		"publish, no index": "stages:\n" +
			"  - name: a\n    publish:\n      dist: dist\n",
		"report, no host": "stages:\n" +
			"  - name: a\n    report:\n      dir: report\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDomainStages_WiresActionsAndGates(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stages, err := c.DomainStages()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deploy := stages[2]
	if deploy.Publish == nil || deploy.Publish.IndexURL != c.PkgIndex.URL {
		t.Errorf("publish spec not wired to index URL: %+v", deploy.Publish)
	}
	if ok, _ := deploy.When.Allows(domain.RunContext{Tag: "v1.0.0"}); !ok {
		t.Error("compiled gate should open on a clean tag")
	}
	if ok, _ := deploy.When.Allows(domain.RunContext{Tag: "v1.0.0-rc1"}); ok {
		t.Error("compiled release gate must reject pre-release tags")
	}
	if !stages[3].Always {
		t.Error("cleanup stage must carry the always flag")
	}
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := Save(out, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	c2, err := Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(c2.Stages) != len(c.Stages) {
		t.Fatalf("stage count changed: %d -> %d", len(c.Stages), len(c2.Stages))
	}
	for i := range c.Stages {
		if c2.Stages[i].Name != c.Stages[i].Name {
			t.Errorf("stage %d renamed: %s -> %s", i, c.Stages[i].Name, c2.Stages[i].Name)
		}
	}
	if c2.Stages[3].Always != c.Stages[3].Always {
		t.Error("always flag lost in round trip")
	}
}

func TestSave_DoesNotPersistCredentials(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	c.PkgIndex.Username = "bot"
	c.PkgIndex.Password = "secret"

	out := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(out, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if s := string(b); strings.Contains(s, "bot") || strings.Contains(s, "secret") {
		t.Error("credentials leaked into the saved file")
	}
}

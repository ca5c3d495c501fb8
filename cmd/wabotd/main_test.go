package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "wabotd dev") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("WABOT_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WABOT_TEST_KEY", "")
	os.Unsetenv("WABOT_TEST_KEY")
	if err := loadEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("WABOT_TEST_KEY"); got != "from-file" {
		t.Errorf("WABOT_TEST_KEY = %q", got)
	}

	t.Setenv("WABOT_TEST_KEY", "from-env")
	if err := loadEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("WABOT_TEST_KEY"); got != "from-env" {
		t.Errorf("existing value overridden: %q", got)
	}
}

func TestRejectsBadInstance(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--instance", "../etc", "--env-file", ""})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected invalid instance name to fail")
	}
}

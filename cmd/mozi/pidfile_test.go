package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRemovePIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "mozi.pid")

	if err := writePIDFile(path, 4242); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}

	got, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if got != 4242 {
		t.Errorf("readPIDFile = %d, want 4242", got)
	}

	removePIDFile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed")
	}
}

func TestReadPIDFileRejectsCorruptContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mozi.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readPIDFile(path); err == nil {
		t.Fatal("expected an error for corrupt pid file content")
	}
}

func TestProcessAliveForCurrentProcess(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("expected the current process to report as alive")
	}
}

func TestPIDFilePathHonorsEnvOverride(t *testing.T) {
	t.Setenv("MOZI_PID_FILE", "/tmp/custom.pid")
	if got := pidFilePath("/home/user/.mozi/config.jsonc"); got != "/tmp/custom.pid" {
		t.Errorf("pidFilePath = %q, want env override", got)
	}
}

func TestPIDFilePathDefaultsUnderConfigDir(t *testing.T) {
	t.Setenv("MOZI_PID_FILE", "")
	got := pidFilePath("/home/user/.mozi/config.jsonc")
	want := filepath.Join("/home/user/.mozi", "data", "mozi.pid")
	if got != want {
		t.Errorf("pidFilePath = %q, want %q", got, want)
	}
}

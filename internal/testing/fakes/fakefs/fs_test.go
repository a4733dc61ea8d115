package fakefs

import (
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// 1. Read and write round trip
// ---------------------------------------------------------------------------

func TestReadWrite(t *testing.T) {
	f := New()

	if err := f.WriteFile("/data/file.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := f.ReadFile("/data/file.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q", got)
	}

	if _, err := f.ReadFile("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// 2. Streaming handles
// ---------------------------------------------------------------------------

func TestOpenFile_StreamingWrites(t *testing.T) {
	f := New()

	h, err := f.OpenFile("/logs/out.log", os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if h.Name() != "/logs/out.log" {
		t.Errorf("Name = %q", h.Name())
	}

	if _, err := h.Write([]byte("line1\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := h.Write([]byte("line2\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := f.ReadFile("/logs/out.log")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "line1\nline2\n" {
		t.Errorf("content = %q", got)
	}

	if _, err := h.Write([]byte("late")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("write after close = %v", err)
	}
}

func TestOpenFile_Excl(t *testing.T) {
	f := New()
	f.AddFile("/a", []byte("x"), 0644)

	if _, err := f.OpenFile("/a", os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600); !errors.Is(err, fs.ErrExist) {
		t.Errorf("O_EXCL on existing file = %v", err)
	}
	if _, err := f.OpenFile("/b", os.O_WRONLY, 0600); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("open missing without O_CREATE = %v", err)
	}
}

// ---------------------------------------------------------------------------
// 3. Directory listing
// ---------------------------------------------------------------------------

func TestReadDir(t *testing.T) {
	f := New()
	f.AddFile("/logs/a.txt", []byte("1"), 0644)
	f.AddFile("/logs/b.txt", []byte("2"), 0644)
	f.AddFile("/logs/sub/c.txt", []byte("3"), 0644)

	entries, err := f.ReadDir("/logs")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Name() != "a.txt" || entries[1].Name() != "b.txt" || entries[2].Name() != "sub" {
		t.Errorf("entries = %v, %v, %v", entries[0].Name(), entries[1].Name(), entries[2].Name())
	}
	if !entries[2].IsDir() {
		t.Error("sub should list as a directory")
	}

	if _, err := f.ReadDir("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing dir = %v", err)
	}
}

// ---------------------------------------------------------------------------
// 4. Stat, Chtimes, Remove, Rename
// ---------------------------------------------------------------------------

func TestStatAndChtimes(t *testing.T) {
	f := New()
	f.AddFile("/f", []byte("abc"), 0600)

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := f.Chtimes("/f", old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	info, err := f.Stat("/f")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 3 {
		t.Errorf("size = %d", info.Size())
	}
	if !info.ModTime().Equal(old) {
		t.Errorf("modTime = %v", info.ModTime())
	}
}

func TestRemoveAndRename(t *testing.T) {
	f := New()
	f.AddFile("/x", []byte("1"), 0644)

	if err := f.Rename("/x", "/y"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := f.ReadFile("/x"); !errors.Is(err, fs.ErrNotExist) {
		t.Error("old path should be gone")
	}
	if err := f.Remove("/y"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := f.Remove("/y"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("double remove = %v", err)
	}
}

// ---------------------------------------------------------------------------
// 5. Environment helpers
// ---------------------------------------------------------------------------

func TestEnvAndHome(t *testing.T) {
	f := New()
	f.SetEnv("XDG_CONFIG_HOME", "/custom/config")
	f.SetHomeDir("/home/other")

	if got := f.Getenv("XDG_CONFIG_HOME"); got != "/custom/config" {
		t.Errorf("Getenv = %q", got)
	}
	if got := f.Getenv("UNSET"); got != "" {
		t.Errorf("unset env = %q", got)
	}
	home, err := f.UserHomeDir()
	if err != nil || home != "/home/other" {
		t.Errorf("home = %q, %v", home, err)
	}
}

package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamarag/types"
)

type fakeIngester struct {
	mu    sync.Mutex
	paths []string
	texts []string
	err   error
}

func (f *fakeIngester) ProcessAndStore(_ context.Context, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := os.ReadFile(path)
	f.paths = append(f.paths, path)
	f.texts = append(f.texts, string(data))
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakeIngester) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func testConfig(t *testing.T) Config {
	root := t.TempDir()
	return Config{
		InboxDir:   filepath.Join(root, "inbox"),
		ArchiveDir: filepath.Join(root, "archive"),
		BadDir:     filepath.Join(root, "bad"),
		Settle:     50 * time.Millisecond,
		Interval:   20 * time.Millisecond,
	}
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, ing Ingester) (*Service, Config) {
	t.Helper()
	cfg := testConfig(t)
	s, err := New(cfg, ing, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, cfg
}

func TestMoveToDated_Collisions(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")

	var got []string
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
		dest, err := moveToDated(src, filepath.Join(root, "archive"), fixedNow)
		require.NoError(t, err)
		got = append(got, filepath.Base(dest))
		assert.NoFileExists(t, src)
	}
	assert.Equal(t, []string{"a.txt", "a_1.txt", "a_2.txt"}, got)
	assert.DirExists(t, filepath.Join(root, "archive", "2024-03-15"))
}

func TestService_HandleText(t *testing.T) {
	ing := &fakeIngester{}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, s.Handle(context.Background(), path))

	want := filepath.Join(cfg.ArchiveDir, "2024-03-15", "notes.txt")
	assert.Equal(t, []string{want}, ing.Paths())
	assert.Equal(t, []string{"hello"}, ing.texts)
	assert.FileExists(t, want)
	assert.NoFileExists(t, path)
}

func TestService_HandleIngestFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("embedding server down")}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	err := s.Handle(context.Background(), path)
	assert.EqualError(t, err, "embedding server down")
	assert.FileExists(t, filepath.Join(cfg.BadDir, "2024-03-15", "notes.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.ArchiveDir, "2024-03-15", "notes.txt"))
}

func TestService_HandleInterruptedLeavesFileInInbox(t *testing.T) {
	ing := &fakeIngester{err: fmt.Errorf("store chunks: %w", context.Canceled)}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Handle(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(cfg.BadDir, "2024-03-15", "notes.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.ArchiveDir, "2024-03-15", "notes.txt"))
}

func TestService_ConsumeAfterCancelSkipsFiles(t *testing.T) {
	ing := &fakeIngester{}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "late.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	files := make(chan string, 1)
	files <- path
	close(files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.consume(ctx, files)

	assert.Empty(t, ing.Paths())
	assert.FileExists(t, path)
	assert.NoDirExists(t, filepath.Join(cfg.BadDir, "2024-03-15"))
}

func TestService_HandleUnsupported(t *testing.T) {
	ing := &fakeIngester{}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	err := s.Handle(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrUnsupportedFile)
	assert.Empty(t, ing.Paths())
	assert.FileExists(t, filepath.Join(cfg.BadDir, "2024-03-15", "image.png"))
}

func TestService_HandleBrokenPDF(t *testing.T) {
	ing := &fakeIngester{}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	err := s.Handle(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrUnsupportedFile)
	assert.Empty(t, ing.Paths())
	assert.FileExists(t, filepath.Join(cfg.BadDir, "2024-03-15", "broken.pdf"))
}

func TestWatcher_Settle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settle = time.Minute
	w, err := NewWatcher(cfg, nil)
	require.NoError(t, err)

	now := fixedNow
	w.now = func() time.Time { return now }

	path := filepath.Join(cfg.InboxDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w.scan()
	assert.Empty(t, w.ready(), "fresh file is not ready")

	now = now.Add(30 * time.Second)
	assert.Empty(t, w.ready())

	now = now.Add(31 * time.Second)
	assert.Equal(t, []string{path}, w.ready())
	assert.Empty(t, w.ready(), "file in processing is not handed out twice")

	require.NoError(t, os.Remove(path))
	w.Done(path)
	w.scan()
	assert.Empty(t, w.lastSeen)
}

func TestWatcher_ScanForgetsVanishedFiles(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWatcher(cfg, nil)
	require.NoError(t, err)

	path := filepath.Join(cfg.InboxDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	w.scan()
	require.Contains(t, w.lastSeen, path)

	require.NoError(t, os.Remove(path))
	w.scan()
	assert.NotContains(t, w.lastSeen, path)
}

func TestService_Run(t *testing.T) {
	ing := &fakeIngester{}
	cfg := testConfig(t)
	s, err := New(cfg, ing, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "doc.txt"), []byte("content"), 0o644))

	require.Eventually(t, func() bool { return len(ing.Paths()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "doc.txt", filepath.Base(ing.Paths()[0]))
	assert.Contains(t, ing.Paths()[0], cfg.ArchiveDir)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

// writeOnePagePDF writes a minimal single-page PDF showing text.
func writeOnePagePDF(t *testing.T, path, text string) {
	t.Helper()
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objects)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPDFToText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.pdf")
	writeOnePagePDF(t, path, "Hello World")

	out, pages, err := PDFToText(path)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assert.Equal(t, strings.TrimSuffix(path, ".pdf")+".txt", out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello World")
}

func TestService_HandlePDF(t *testing.T) {
	ing := &fakeIngester{}
	s, cfg := newTestService(t, ing)
	path := filepath.Join(cfg.InboxDir, "report.pdf")
	writeOnePagePDF(t, path, "Quarterly numbers")

	require.NoError(t, s.Handle(context.Background(), path))

	want := filepath.Join(cfg.ArchiveDir, "2024-03-15", "report.txt")
	assert.Equal(t, []string{want}, ing.Paths())
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir, "2024-03-15", "report.pdf"))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.txt"))
	assert.True(t, IsSupported("A.TXT"))
	assert.True(t, IsSupported("b.pdf"))
	assert.False(t, IsSupported("c.docx"))
	assert.False(t, IsSupported("noext"))
}

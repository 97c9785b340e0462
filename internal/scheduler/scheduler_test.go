package scheduler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fetchhttp "github.com/tanq16/batchfetch/internal/downloaders/http"
	"github.com/tanq16/batchfetch/internal/utils"
)

type recorder struct {
	mu     sync.Mutex
	events []utils.Event
}

func (r *recorder) Report(ev utils.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) byTarget(name string, kind utils.EventKind) []utils.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []utils.Event
	for _, ev := range r.events {
		if ev.Target.Name() == name && ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// newServer serves files[path] with HEAD and Range support.
func newServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func newRunner(rep utils.Reporter) *Runner {
	source := fetchhttp.NewSource(utils.NewFetchHTTPClient(utils.HTTPClientConfig{}))
	return &Runner{Sources: Registry{"http": source, "https": source}, Reporter: rep}
}

func fill(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestRunBatchFailTogether(t *testing.T) {
	files := map[string][]byte{
		"/one.bin":   fill(6000, 1),
		"/two.bin":   fill(6000, 2),
		"/three.bin": fill(9000, 3),
	}
	server := newServer(t, files)
	dir := t.TempDir()
	// A directory where two.bin should go makes that target fail.
	if err := os.Mkdir(filepath.Join(dir, "two.bin"), 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	urls := []string{server.URL + "/one.bin", server.URL + "/two.bin", server.URL + "/three.bin"}

	err := newRunner(rec).RunBatch(context.Background(), "7", urls, dir)
	if err == nil {
		t.Fatal("expected the batch to fail")
	}
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("error: got %T, want *BatchError", err)
	}
	if batchErr.BatchID != "7" || len(batchErr.Errs) != 1 || batchErr.Total != 3 {
		t.Errorf("batch error: got id=%s errs=%d total=%d", batchErr.BatchID, len(batchErr.Errs), batchErr.Total)
	}
	var writeErr *utils.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("error: got %v, want a WriteError inside", err)
	}
	if !strings.Contains(err.Error(), "two.bin") {
		t.Errorf("error should name the failing file: %v", err)
	}
	for name, size := range map[string]int{"one.bin": 6000, "three.bin": 9000} {
		info, statErr := os.Stat(filepath.Join(dir, name))
		if statErr != nil {
			t.Fatalf("%s: %v", name, statErr)
		}
		if info.Size() != int64(size) {
			t.Errorf("%s size: got %d, want %d", name, info.Size(), size)
		}
		if n := len(rec.byTarget(name, utils.EventComplete)); n != 1 {
			t.Errorf("%s complete events: got %d, want 1", name, n)
		}
	}
	if n := len(rec.byTarget("two.bin", utils.EventError)); n != 1 {
		t.Errorf("two.bin error events: got %d, want 1", n)
	}
}

func TestRunBatchTwiceSkipsEverything(t *testing.T) {
	files := map[string][]byte{
		"/a.txt":         fill(1500, 'a'),
		"/b.txt":         fill(4000, 'b'),
		"/nested/c.data": fill(10, 'c'),
	}
	server := newServer(t, files)
	dir := t.TempDir()
	urls := []string{server.URL + "/a.txt", server.URL + "/b.txt", server.URL + "/nested/c.data"}

	if err := newRunner(nil).RunBatch(context.Background(), "1", urls, dir); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rec := &recorder{}
	if err := newRunner(rec).RunBatch(context.Background(), "2", urls, dir); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt", "c.data"} {
		if n := len(rec.byTarget(name, utils.EventSkip)); n != 1 {
			t.Errorf("%s skip events: got %d, want 1", name, n)
		}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 3 {
		t.Errorf("second run events: got %d, want only 3 skips", len(rec.events))
	}
}

func TestRunBatchUnsupportedScheme(t *testing.T) {
	server := newServer(t, map[string][]byte{"/ok.bin": fill(100, 9)})
	dir := t.TempDir()
	urls := []string{"ftp://example.com/file.bin", server.URL + "/ok.bin"}

	err := newRunner(nil).RunBatch(context.Background(), "1", urls, dir)
	if !errors.Is(err, utils.ErrUnsupportedScheme) {
		t.Fatalf("error: got %v, want ErrUnsupportedScheme", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "ok.bin")); statErr != nil {
		t.Errorf("sibling target should still finish: %v", statErr)
	}
}

func TestRunBatchSizeUnavailableIsPerTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nosize" {
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(fill(700, 5)))
	}))
	defer server.Close()
	dir := t.TempDir()

	err := newRunner(nil).RunBatch(context.Background(), "1", []string{server.URL + "/nosize", server.URL + "/sized"}, dir)
	var sizeErr *utils.SizeUnavailableError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("error: got %v, want SizeUnavailableError", err)
	}
	if info, statErr := os.Stat(filepath.Join(dir, "sized")); statErr != nil || info.Size() != 700 {
		t.Errorf("sized target not downloaded: %v", statErr)
	}
}

type countingSource struct {
	utils.Source
	active, peak atomic.Int32
}

func (c *countingSource) Size(ctx context.Context, url string) (int64, error) {
	now := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if now <= peak || c.peak.CompareAndSwap(peak, now) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return c.Source.Size(ctx, url)
}

func TestRunBatchMaxParallel(t *testing.T) {
	files := map[string][]byte{}
	var urls []string
	server := newServer(t, files)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files["/"+name] = fill(64, 'x')
		urls = append(urls, server.URL+"/"+name)
	}
	source := &countingSource{Source: fetchhttp.NewSource(utils.NewFetchHTTPClient(utils.HTTPClientConfig{}))}
	runner := &Runner{Sources: Registry{"http": source}, MaxParallel: 2}

	if err := runner.RunBatch(context.Background(), "1", urls, t.TempDir()); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if peak := source.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency: got %d, want at most 2", peak)
	}
}

func TestPlanDoesNotDownload(t *testing.T) {
	server := newServer(t, map[string][]byte{"/p.bin": fill(2000, 'p'), "/q.bin": fill(50, 'q')})
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "p.bin"), fill(500, 'p'), 0644); err != nil {
		t.Fatal(err)
	}

	results := newRunner(nil).Plan(context.Background(), []string{server.URL + "/p.bin", server.URL + "/q.bin"}, dir)
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].Err != nil || results[0].Decision.Action != utils.ActionAppend || results[0].Decision.Offset != 500 {
		t.Errorf("p.bin: got %+v", results[0])
	}
	if results[1].Err != nil || results[1].Decision.Action != utils.ActionCreate {
		t.Errorf("q.bin: got %+v", results[1])
	}
	if _, err := os.Stat(filepath.Join(dir, "q.bin")); !os.IsNotExist(err) {
		t.Error("plan must not create files")
	}
}

func TestRegistrySourceFor(t *testing.T) {
	source := fetchhttp.NewSource(utils.NewFetchHTTPClient(utils.HTTPClientConfig{}))
	registry := Registry{"https": source}
	if got, err := registry.SourceFor("HTTPS://example.com/x"); err != nil || got != source {
		t.Errorf("SourceFor https: got %v, %v", got, err)
	}
	if _, err := registry.SourceFor("gopher://example.com/x"); !errors.Is(err, utils.ErrUnsupportedScheme) {
		t.Errorf("SourceFor gopher: got %v", err)
	}
}

func TestWarnDuplicateTargets(t *testing.T) {
	var buf bytes.Buffer
	utils.SetLogOutput(&buf)
	t.Cleanup(func() { utils.SetLogOutput(os.Stderr) })

	first := "https://a.example/pkg/file.bin"
	second := "https://b.example/mirror/file.bin"
	warnDuplicateTargets("3", []string{first, "https://a.example/other.bin", second}, "out")

	logs := buf.String()
	if n := strings.Count(logs, "Two URLs share a destination path"); n != 1 {
		t.Fatalf("warnings: got %d, want 1:\n%s", n, logs)
	}
	for _, want := range []string{first, second, filepath.Join("out", "file.bin")} {
		if !strings.Contains(logs, want) {
			t.Errorf("warning missing %q:\n%s", want, logs)
		}
	}
	if strings.Contains(logs, "other.bin") {
		t.Errorf("unique target reported as duplicate:\n%s", logs)
	}
}

package transfer

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

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

func (r *recorder) kinds() []utils.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []utils.EventKind
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *recorder) count(kind utils.EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type fileServer struct {
	*httptest.Server
	gets   atomic.Int32
	heads  atomic.Int32
	ranges chan string
}

// newFileServer serves data at every path with HEAD and Range support.
func newFileServer(t *testing.T, data []byte) *fileServer {
	t.Helper()
	fs := &fileServer{ranges: make(chan string, 16)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			fs.heads.Add(1)
		} else {
			fs.gets.Add(1)
			select {
			case fs.ranges <- r.Header.Get("Range"):
			default:
			}
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(fs.Close)
	return fs
}

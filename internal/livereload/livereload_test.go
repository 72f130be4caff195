package livereload

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent returns the next "data:" line from an SSE stream.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	initial := readEvent(t, r)
	assert.Contains(t, initial, `"token":"`)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast("abc")
	assert.Equal(t, `{"token":"abc"}`, readEvent(t, r))
}

func TestHub_IgnoresEmptyAndRepeatedTokens(t *testing.T) {
	hub := NewHub()
	c := &client{ch: make(chan string, 8), done: make(chan struct{})}
	hub.clients[0] = c

	hub.Broadcast("")
	hub.Broadcast("one")
	hub.Broadcast("one")
	hub.Broadcast("two")

	require.Len(t, c.ch, 2)
	assert.Equal(t, "one", <-c.ch)
	assert.Equal(t, "two", <-c.ch)
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub()
	c := &client{ch: make(chan string), done: make(chan struct{})}
	hub.clients[0] = c

	hub.Broadcast("x")

	assert.Equal(t, 0, hub.Clients())
	select {
	case <-c.done:
	default:
		t.Fatal("dropped client was not closed")
	}
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub()
	c := &client{ch: make(chan string, 1), done: make(chan struct{})}
	hub.clients[0] = c

	hub.Shutdown()
	hub.Shutdown()

	assert.Equal(t, 0, hub.Clients())
	hub.Broadcast("late")
	assert.Empty(t, c.ch)

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, EventsPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScriptHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ScriptPath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "new EventSource('"+EventsPath+"')")
}

func serveHTML(contentType, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", "999")
		_, _ = io.WriteString(w, body)
	})
}

func TestInject(t *testing.T) {
	t.Run("html page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Inject(serveHTML("text/html; charset=utf-8", "<html><body><p>hi</p></body></html>")).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "<html><body><p>hi</p>"+scriptTag+"</body></html>", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Content-Length"))
	})

	t.Run("no body tag", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Inject(serveHTML("text/html", "<p>fragment</p>")).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page.html", nil))

		assert.Equal(t, "<p>fragment</p>"+scriptTag, rec.Body.String())
	})

	t.Run("non html path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Inject(serveHTML("text/css", "a{}</body>")).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/site.css", nil))

		assert.Equal(t, "a{}</body>", rec.Body.String())
	})

	t.Run("non html content type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Inject(serveHTML("application/json", `{"a":"</body>"}`)).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, `{"a":"</body>"}`, rec.Body.String())
	})

	t.Run("status preserved", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "<body>missing</body>")
		})
		Inject(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gone/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), scriptTag)
	})

	t.Run("oversized passes through", func(t *testing.T) {
		big := strings.Repeat("a", maxInjectSize) + "</body>"
		rec := httptest.NewRecorder()
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, big[:1024])
			_, _ = io.WriteString(w, big[1024:])
		})
		Inject(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, big, rec.Body.String())
	})
}

type tokenSink struct {
	mu     sync.Mutex
	tokens []string
}

func (s *tokenSink) Broadcast(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
}

func (s *tokenSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func TestWatcher_BroadcastsOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o750))

	sink := &tokenSink{}
	w, err := NewWatcher(sink, 20*time.Millisecond, root, filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Len(t, w.WatchList(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("a{}"), 0o600))
	require.Eventually(t, func() bool { return sink.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	sink := &tokenSink{}
	w, err := NewWatcher(sink, 20*time.Millisecond, root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "img"), 0o750))
	require.Eventually(t, func() bool { return len(w.WatchList()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestShouldIgnoreEvent(t *testing.T) {
	for _, p := range []string{"/a/.hidden", "/a/site.css~", "/a/.site.css.swp", "/a/x.swx", "/a/#x#", "/a/Thumbs.db"} {
		assert.True(t, shouldIgnoreEvent(p), p)
	}
	for _, p := range []string{"/a/site.css", "/a/_partial.css", "/a/img/cat.jpeg"} {
		assert.False(t, shouldIgnoreEvent(p), p)
	}
}

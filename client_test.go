package courier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/courier/core"
	"github.com/meigma/courier/internal/destination"
)

const waitTimeout = 10 * time.Second

// chunkTransport is a Transport double that serves a download as a fixed
// number of equal chunks and answers uploads and fetches with canned data.
type chunkTransport struct {
	chunks    int
	chunkSize int
	header    http.Header

	mu      sync.Mutex
	gets    int
	posts   [][]byte
	fetched *ResponseMetadata
}

func (f *chunkTransport) Get(_ context.Context, _ string, _ *Continuation, dst Sink, onProgress func(transferred, total int64)) (*TransportOutcome, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()

	total := int64(f.chunks * f.chunkSize)
	chunk := bytes.Repeat([]byte{'x'}, f.chunkSize)

	var written int64
	for range f.chunks {
		n, err := dst.Write(chunk)
		written += int64(n)
		if err != nil {
			return &TransportOutcome{Written: written, Total: total}, &FileSystemError{Cause: err}
		}
		onProgress(written, total)
	}
	return &TransportOutcome{StatusCode: http.StatusOK, Header: f.header, Written: written, Total: total}, nil
}

func (f *chunkTransport) Post(_ context.Context, _ string, body []byte, _ string, onProgress func(transferred, total int64)) (*ResponseMetadata, error) {
	f.mu.Lock()
	f.posts = append(f.posts, body)
	f.mu.Unlock()
	if len(body) > 0 {
		onProgress(int64(len(body)), int64(len(body)))
	}
	return &ResponseMetadata{StatusCode: http.StatusCreated, Header: http.Header{}}, nil
}

func (f *chunkTransport) Fetch(context.Context, string) (*ResponseMetadata, error) {
	if f.fetched == nil {
		return nil, &TransportError{Cause: errors.New("no response configured")}
	}
	return f.fetched, nil
}

// gatedServer serves payload with a strong ETag. Full requests send the first
// half and then stall until the client goes away; range requests are served
// completely.
func gatedServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Header.Get("Range") != "" {
			http.ServeContent(w, r, "payload", time.Time{}, bytes.NewReader(payload))
			return
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload[:len(payload)/2])
		w.(http.Flusher).Flush()

		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func newTestClient(t *testing.T, opts ...ClientOption) (*Client, billy.Filesystem) {
	t.Helper()

	fs := memfs.New()
	c, err := NewClient(append([]ClientOption{WithFilesystem(fs)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fs
}

// drain reads ch until it is closed.
func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()

	var events []Event
	timeout := time.After(waitTimeout)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("event stream not closed after %s; got %d events", waitTimeout, len(events))
			return nil
		}
	}
}

// awaitBytes reads ch until a progress event reports at least n bytes.
func awaitBytes(t *testing.T, ch <-chan Event, n int64) {
	t.Helper()

	timeout := time.After(waitTimeout)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "stream closed before %d bytes", n)
			if e.Type == EventProgress && e.Progress.BytesTransferred >= n {
				return
			}
		case <-timeout:
			t.Fatalf("no progress to %d bytes after %s", n, waitTimeout)
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func countType(types []EventType, want EventType) int {
	var n int
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func spoolExists(fs billy.Filesystem, id string) bool {
	_, err := fs.Stat(filepath.Join(destination.IncomingDir, id+destination.PartSuffix))
	return err == nil
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("nil logger rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(WithLogger(nil))
		assert.Error(t, err)
	})

	t.Run("empty download dir rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(WithDownloadDir(""))
		assert.Error(t, err)
	})

	t.Run("download dir", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		c, err := NewClient(WithDownloadDir(dir))
		require.NoError(t, err)
		assert.Equal(t, dir, c.DownloadDir())
	})
}

func TestCheckURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http", url: "http://example.com/file"},
		{name: "https with port", url: "https://example.com:8443/a/b?c=d"},
		{name: "empty", url: "", wantErr: true},
		{name: "relative", url: "/just/a/path", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/file", wantErr: true},
		{name: "missing host", url: "http:///file", wantErr: true},
		{name: "unparseable", url: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDownload_ProgressEvents(t *testing.T) {
	t.Parallel()

	ft := &chunkTransport{chunks: 10, chunkSize: 100000}
	c, fs := newTestClient(t, WithTransport(ft))

	tr, err := c.StartDownload(context.Background(), "https://example.com/files/big.bin")
	require.NoError(t, err)
	assert.Equal(t, KindDownload, tr.Kind())

	events := drain(t, tr.Events())
	require.Len(t, events, 11)

	for i, e := range events[:10] {
		assert.Equal(t, EventProgress, e.Type)
		assert.Equal(t, tr.ID(), e.TaskID)
		assert.InDelta(t, float64(i+1)/10, e.Progress.Fraction, 1e-9)
		assert.Equal(t, int64(1000000), e.Progress.TotalBytes)
	}

	last := events[10]
	require.Equal(t, EventCompleted, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, int64(1000000), last.Result.Bytes)
	assert.Equal(t, "big.bin", filepath.Base(last.Result.Path))

	fi, err := fs.Stat("big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), fi.Size())
	assert.False(t, spoolExists(fs, tr.ID()))

	info := tr.Info()
	assert.Equal(t, StateCompleted, info.State)
	assert.InDelta(t, 1.0, info.Fraction, 1e-9)

	_, active := c.Active(KindDownload)
	assert.False(t, active)
}

func TestDownload_Options(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte{'x'}, 30)

	tests := []struct {
		name     string
		header   http.Header
		opts     []DownloadOption
		wantName string
		wantErr  error
	}{
		{
			name:     "name from url",
			wantName: "file.txt",
		},
		{
			name:     "name from content disposition",
			header:   http.Header{"Content-Disposition": {`attachment; filename="report.csv"`}},
			wantName: "report.csv",
		},
		{
			name:     "explicit filename wins",
			header:   http.Header{"Content-Disposition": {`attachment; filename="report.csv"`}},
			opts:     []DownloadOption{WithFilename("mine.dat")},
			wantName: "mine.dat",
		},
		{
			name:     "matching digest",
			opts:     []DownloadOption{WithDigest(digest.FromBytes(content))},
			wantName: "file.txt",
		},
		{
			name:    "digest mismatch",
			opts:    []DownloadOption{WithDigest(digest.FromString("something else"))},
			wantErr: ErrDigestMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ft := &chunkTransport{chunks: 3, chunkSize: 10, header: tt.header}
			c, fs := newTestClient(t, WithTransport(ft))

			tr, err := c.StartDownload(context.Background(), "https://example.com/dl/file.txt", tt.opts...)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
			defer cancel()
			result, err := tr.Wait(ctx)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StateFailed, tr.Info().State)
				assert.False(t, spoolExists(fs, tr.ID()))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, filepath.Base(result.Path))

			got, err := util.ReadFile(fs, tt.wantName)
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestDownload_UnsafeFilename(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../escape", "a/b", "/etc/passwd", ".."} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ft := &chunkTransport{chunks: 1, chunkSize: 10}
			c, fs := newTestClient(t, WithTransport(ft))

			tr, err := c.StartDownload(context.Background(), "https://example.com/file.txt", WithFilename(name))
			require.ErrorIs(t, err, ErrFileSystemFailure)
			assert.Nil(t, tr)

			_, active := c.Active(KindDownload)
			assert.False(t, active)

			ft.mu.Lock()
			assert.Zero(t, ft.gets)
			ft.mu.Unlock()

			_, err = fs.Stat(destination.IncomingDir)
			assert.Error(t, err)
		})
	}
}

func TestDownload_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c, fs := newTestClient(t)

	_, err := c.Download(context.Background(), srv.URL+"/missing.bin")
	require.ErrorIs(t, err, ErrBadServerResponse)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, statErr := fs.Stat("missing.bin")
	assert.Error(t, statErr)
}

func TestDownload_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/file"
	srv.Close()

	c, _ := newTestClient(t)

	_, err := c.Download(context.Background(), url)
	assert.ErrorIs(t, err, ErrTransportFailure)
}

func TestDownload_BadURL(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)

	_, err := c.StartDownload(context.Background(), "not a url")
	require.ErrorIs(t, err, ErrBadURL)

	_, active := c.Active(KindDownload)
	assert.False(t, active)
}

func TestDownload_PauseResume(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789"), 10000)
	srv := gatedServer(t, payload)
	c, fs := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/data.bin")
	require.NoError(t, err)

	events := tr.Events()
	awaitBytes(t, events, int64(len(payload)/2))

	token := c.PauseDownload()
	require.NotNil(t, token)
	assert.Equal(t, srv.URL+"/data.bin", token.URL())
	assert.Equal(t, int64(len(payload)/2), token.Continuation().Offset)
	assert.Equal(t, StatePaused, tr.Info().State)
	assert.True(t, spoolExists(fs, tr.ID()))

	// pausing again hands back the same token
	assert.Same(t, token, c.PauseDownload())

	resumed, err := c.ResumeDownload(context.Background(), token)
	require.NoError(t, err)
	assert.Same(t, tr, resumed)

	// tokens work once
	_, err = c.ResumeDownload(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidResumeToken)

	rest := drain(t, events)
	types := eventTypes(rest)
	require.NotEmpty(t, types)
	assert.Equal(t, EventPaused, types[0])
	assert.Equal(t, EventResumed, types[1])
	assert.Equal(t, EventCompleted, types[len(types)-1])

	var last float64
	for _, e := range rest {
		if e.Type == EventProgress {
			assert.GreaterOrEqual(t, e.Progress.Fraction, last)
			last = e.Progress.Fraction
		}
	}
	assert.InDelta(t, 1.0, last, 1e-9)

	got, err := util.ReadFile(fs, "data.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownload_PauseUnresumable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		// stall before sending headers instead of after half the body
		stallEarly bool
	}{
		{name: "server without byte ranges"},
		{name: "no response yet", stallEarly: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := bytes.Repeat([]byte{'n'}, 4096)
			entered := make(chan struct{}, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tt.stallEarly {
					w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write(payload[:len(payload)/2])
					w.(http.Flusher).Flush()
				}
				entered <- struct{}{}
				<-r.Context().Done()
			}))
			t.Cleanup(srv.Close)

			c, fs := newTestClient(t)

			tr, err := c.StartDownload(context.Background(), srv.URL+"/file.bin")
			require.NoError(t, err)
			events := tr.Events()

			select {
			case <-entered:
			case <-time.After(waitTimeout):
				t.Fatal("request never reached the server")
			}
			if !tt.stallEarly {
				awaitBytes(t, events, int64(len(payload)/2))
			}

			assert.Nil(t, c.PauseDownload())
			assert.Equal(t, StateCancelled, tr.Info().State)

			rest := drain(t, events)
			assert.Equal(t, []EventType{EventCancelled}, eventTypes(rest))

			ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
			defer cancel()
			_, err = tr.Wait(ctx)
			require.ErrorIs(t, err, ErrCancelled)
			assert.NotErrorIs(t, err, ErrTransportFailure)

			assert.False(t, spoolExists(fs, tr.ID()))
			_, active := c.Active(KindDownload)
			assert.False(t, active)
		})
	}
}

func TestDownload_ResumeKeepsOptions(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	srv := gatedServer(t, payload)
	c, fs := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/data.bin", WithFilename("first.bin"))
	require.NoError(t, err)
	awaitBytes(t, tr.Events(), int64(len(payload)/2))
	require.NotNil(t, c.PauseDownload())

	// resuming through StartDownload keeps the original options
	again, err := c.StartDownload(context.Background(), srv.URL+"/data.bin", WithFilename("second.bin"))
	require.NoError(t, err)
	assert.Same(t, tr, again)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := tr.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first.bin", filepath.Base(result.Path))

	_, err = fs.Stat("second.bin")
	assert.Error(t, err)
}

func TestDownload_PauseWithoutActive(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	assert.Nil(t, c.PauseDownload())
}

func TestDownload_ResumeForeignToken(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)

	_, err := c.ResumeDownload(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidResumeToken)

	forged := core.NewResumeToken("task", "https://example.com/x", Continuation{Offset: 10, AcceptRanges: true})
	_, err = c.ResumeDownload(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
}

func TestDownload_Cancel(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'a'}, 4096)
	srv := gatedServer(t, payload)
	c, fs := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/file.bin")
	require.NoError(t, err)

	events := tr.Events()
	awaitBytes(t, events, int64(len(payload)/2))

	c.CancelDownload()
	c.CancelDownload()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = tr.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)

	rest := drain(t, events)
	require.Len(t, rest, 1)
	assert.Equal(t, EventCancelled, rest[0].Type)

	assert.Equal(t, StateCancelled, tr.Info().State)
	assert.False(t, spoolExists(fs, tr.ID()))
	_, active := c.Active(KindDownload)
	assert.False(t, active)

	// nothing active any more
	c.CancelDownload()
	assert.Nil(t, c.PauseDownload())
}

func TestDownload_CancelPaused(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'b'}, 4096)
	srv := gatedServer(t, payload)
	c, fs := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/file.bin")
	require.NoError(t, err)
	awaitBytes(t, tr.Events(), int64(len(payload)/2))

	token := c.PauseDownload()
	require.NotNil(t, token)

	c.CancelDownload()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = tr.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.False(t, spoolExists(fs, tr.ID()))

	_, err = c.ResumeDownload(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
}

func TestDownload_AlreadyInProgress(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'c'}, 4096)
	srv := gatedServer(t, payload)
	c, _ := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/one.bin")
	require.NoError(t, err)
	awaitBytes(t, tr.Events(), int64(len(payload)/2))

	_, err = c.StartDownload(context.Background(), srv.URL+"/two.bin")
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	info, active := c.Active(KindDownload)
	require.True(t, active)
	assert.Equal(t, tr.ID(), info.ID)
	assert.Equal(t, StateRunning, info.State)

	c.CancelDownload()
}

func TestDownload_StartReplacesPaused(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'d'}, 4096)
	srv := gatedServer(t, payload)
	c, _ := newTestClient(t)

	first, err := c.StartDownload(context.Background(), srv.URL+"/first.bin")
	require.NoError(t, err)
	awaitBytes(t, first.Events(), int64(len(payload)/2))
	require.NotNil(t, c.PauseDownload())

	t.Run("same url resumes", func(t *testing.T) {
		again, err := c.StartDownload(context.Background(), srv.URL+"/first.bin")
		require.NoError(t, err)
		assert.Same(t, first, again)

		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		result, err := again.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first.bin", filepath.Base(result.Path))
	})

	t.Run("different url cancels paused", func(t *testing.T) {
		paused, err := c.StartDownload(context.Background(), srv.URL+"/second.bin")
		require.NoError(t, err)
		awaitBytes(t, paused.Events(), int64(len(payload)/2))
		require.NotNil(t, c.PauseDownload())

		next, err := c.StartDownload(context.Background(), srv.URL+"/third.bin")
		require.NoError(t, err)
		assert.NotEqual(t, paused.ID(), next.ID())

		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_, err = paused.Wait(ctx)
		require.ErrorIs(t, err, ErrCancelled)

		c.CancelDownload()
	})
}

func TestDownload_BlockingContextCancel(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'e'}, 4096)
	srv := gatedServer(t, payload)
	c, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.Download(ctx, srv.URL+"/slow.bin")
	require.Error(t, err)

	_, active := c.Active(KindDownload)
	assert.False(t, active)
}

func TestTransfer_Notify(t *testing.T) {
	t.Parallel()

	ft := &chunkTransport{chunks: 4, chunkSize: 25}
	c, _ := newTestClient(t, WithTransport(ft))

	tr, err := c.StartDownload(context.Background(), "https://example.com/n.bin")
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		fractions []float64
	)
	done := make(chan struct{})
	var (
		gotResult *Result
		gotErr    error
	)
	tr.Notify(func(p Progress) {
		mu.Lock()
		fractions = append(fractions, p.Fraction)
		mu.Unlock()
	}, func(result *Result, err error) {
		gotResult, gotErr = result, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("onDone not called")
	}

	require.NoError(t, gotErr)
	require.NotNil(t, gotResult)
	assert.Equal(t, int64(100), gotResult.Bytes)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fractions, 4)
	assert.InDelta(t, 1.0, fractions[3], 1e-9)
}

func TestTransfer_SubscribeAfterFinish(t *testing.T) {
	t.Parallel()

	ft := &chunkTransport{chunks: 2, chunkSize: 5}
	c, _ := newTestClient(t, WithTransport(ft))

	tr, err := c.StartDownload(context.Background(), "https://example.com/s.bin")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = tr.Wait(ctx)
	require.NoError(t, err)

	late := drain(t, tr.Subscribe(ctx))
	require.Len(t, late, 1)
	assert.Equal(t, EventCompleted, late[0].Type)

	// Events replays the full history even when read late.
	all := drain(t, tr.Events())
	assert.Equal(t, []EventType{EventProgress, EventProgress, EventCompleted}, eventTypes(all))
	assert.Same(t, tr.Events(), tr.Events())
}

func TestTransfer_WaitContext(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'f'}, 4096)
	srv := gatedServer(t, payload)
	c, _ := newTestClient(t)

	tr, err := c.StartDownload(context.Background(), srv.URL+"/w.bin")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// leaving Wait does not touch the transfer
	info, active := c.Active(KindDownload)
	require.True(t, active)
	assert.Equal(t, tr.ID(), info.ID)

	c.CancelDownload()
}

func TestUpload(t *testing.T) {
	t.Parallel()

	type received struct {
		method        string
		contentType   string
		contentLength int64
		body          []byte
	}

	tests := []struct {
		name        string
		body        []byte
		contentType string
		status      int
	}{
		{name: "json body", body: []byte(`{"title":"hello"}`), contentType: "application/json", status: http.StatusCreated},
		{name: "zero length body", body: nil, contentType: "application/octet-stream", status: http.StatusOK},
		{name: "server error passes through", body: []byte("x"), contentType: "text/plain", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := make(chan received, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				got <- received{
					method:        r.Method,
					contentType:   r.Header.Get("Content-Type"),
					contentLength: r.ContentLength,
					body:          data,
				}
				w.Header().Set("X-Upload", "seen")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ack"))
			}))
			t.Cleanup(srv.Close)

			c, _ := newTestClient(t)

			meta, err := c.Upload(context.Background(), srv.URL+"/posts", tt.body, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.status, meta.StatusCode)
			assert.Equal(t, "seen", meta.Header.Get("X-Upload"))
			assert.Equal(t, []byte("ack"), meta.Body)

			r := <-got
			assert.Equal(t, http.MethodPost, r.method)
			assert.Equal(t, tt.contentType, r.contentType)
			assert.Equal(t, int64(len(tt.body)), r.contentLength)
			assert.Equal(t, len(tt.body), len(r.body))
		})
	}
}

func TestUpload_Events(t *testing.T) {
	t.Parallel()

	ft := &chunkTransport{}
	c, _ := newTestClient(t, WithTransport(ft))

	body, contentType, err := EncodeJSON(map[string]string{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	tr, err := c.StartUpload(context.Background(), "https://example.com/posts", body, contentType)
	require.NoError(t, err)
	assert.Equal(t, KindUpload, tr.Kind())

	// the caller's buffer may be reused once StartUpload returns
	body[0] = '!'

	events := drain(t, tr.Events())
	assert.Equal(t, []EventType{EventProgress, EventCompleted}, eventTypes(events))
	assert.Equal(t, http.StatusCreated, events[1].Result.Response.StatusCode)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.posts, 1)
	assert.Equal(t, byte('{'), ft.posts[0][0])
}

func TestUpload_ZeroLengthReportsFullProgress(t *testing.T) {
	t.Parallel()

	ft := &chunkTransport{}
	c, _ := newTestClient(t, WithTransport(ft))

	tr, err := c.StartUpload(context.Background(), "https://example.com/empty", nil, "")
	require.NoError(t, err)

	events := drain(t, tr.Events())
	require.Len(t, events, 2)
	assert.Equal(t, EventProgress, events[0].Type)
	assert.InDelta(t, 1.0, events[0].Progress.Fraction, 1e-9)
	assert.Equal(t, EventCompleted, events[1].Type)
}

func TestUpload_Cancel(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		entered <- struct{}{}
		<-r.Context().Done()
		close(released)
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t)

	tr, err := c.StartUpload(context.Background(), srv.URL+"/posts", []byte("payload"), "text/plain")
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("upload never reached the server")
	}

	// a second upload is refused and the first keeps running
	_, err = c.StartUpload(context.Background(), srv.URL+"/other", []byte("x"), "text/plain")
	require.ErrorIs(t, err, ErrAlreadyInProgress)
	info, active := c.Active(KindUpload)
	require.True(t, active)
	assert.Equal(t, tr.ID(), info.ID)
	assert.Equal(t, StateRunning, info.State)

	c.CancelUpload()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = tr.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)

	select {
	case <-released:
	case <-time.After(waitTimeout):
		t.Fatal("server request still open after cancel")
	}

	assert.Equal(t, StateCancelled, tr.Info().State)
	_, active = c.Active(KindUpload)
	assert.False(t, active)

	// cancelling again changes nothing
	c.CancelUpload()
	events := drain(t, tr.Events())
	types := eventTypes(events)
	assert.Equal(t, EventCancelled, types[len(types)-1])
	assert.Equal(t, 1, countType(types, EventCancelled))
}

func TestUpload_BadURL(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)

	_, err := c.StartUpload(context.Background(), "mailto:someone@example.com", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, ErrBadURL)

	// a cancel with nothing running is a no-op
	c.CancelUpload()
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, WithTransport(&chunkTransport{chunks: 1, chunkSize: 1}))
	require.NoError(t, c.Close())

	_, err := c.StartDownload(context.Background(), "https://example.com/a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.StartUpload(context.Background(), "https://example.com/a", nil, "")
	assert.ErrorIs(t, err, ErrClosed)
}

type post struct {
	UserID int    `json:"userId" yaml:"userId"`
	ID     int    `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
}

func TestFetchTyped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		strict      bool
		want        []post
		wantErr     error
	}{
		{
			name:        "json array",
			contentType: "application/json",
			body:        `[{"userId":1,"id":1,"title":"a"},{"userId":1,"id":2,"title":"b"},{"userId":2,"id":3,"title":"c"}]`,
			want:        []post{{1, 1, "a"}, {1, 2, "b"}, {2, 3, "c"}},
		},
		{
			name:        "json object",
			contentType: "application/json; charset=utf-8",
			body:        `{"userId":7,"id":9,"title":"single"}`,
			want:        []post{{7, 9, "single"}},
		},
		{
			name:        "yaml sequence",
			contentType: "application/yaml",
			body:        "- userId: 1\n  id: 1\n  title: a\n- userId: 2\n  id: 2\n  title: b\n",
			want:        []post{{1, 1, "a"}, {2, 2, "b"}},
		},
		{
			name:        "wrong shape",
			contentType: "application/json",
			body:        `"just a string"`,
			wantErr:     ErrDecodeFailed,
		},
		{
			name:        "unknown field in strict mode",
			contentType: "application/json",
			body:        `[{"id":1,"extra":true}]`,
			strict:      true,
			wantErr:     ErrDecodeFailed,
		},
		{
			name:        "unknown field tolerated",
			contentType: "application/json",
			body:        `[{"id":1,"extra":true}]`,
			want:        []post{{ID: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			c, _ := newTestClient(t, WithStrictDecoding(tt.strict))

			got, err := FetchTyped[post](context.Background(), c, srv.URL+"/posts")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var decodeErr *DecodeError
				assert.ErrorAs(t, err, &decodeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `[{"id":1}]`)
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t)

	records, err := FetchTyped[post](context.Background(), c, srv.URL+"/missing")
	assert.Nil(t, records)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, ErrBadServerResponse)
	assert.NotErrorIs(t, err, ErrDecodeFailed)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchRaw(t *testing.T) {
	t.Parallel()

	t.Run("returns body", func(t *testing.T) {
		t.Parallel()
		ft := &chunkTransport{fetched: &ResponseMetadata{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte("raw bytes")}}
		c, _ := newTestClient(t, WithTransport(ft))

		got, err := c.FetchRaw(context.Background(), "https://example.com/raw")
		require.NoError(t, err)
		assert.Equal(t, []byte("raw bytes"), got)
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t, WithTransport(&chunkTransport{}))

		_, err := c.FetchRaw(context.Background(), "https://example.com/raw")
		require.ErrorIs(t, err, ErrFetchFailed)
		require.ErrorIs(t, err, ErrTransportFailure)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Zero(t, fetchErr.StatusCode)
	})

	t.Run("bad url", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t)

		_, err := c.FetchRaw(context.Background(), "example.com/no-scheme")
		assert.ErrorIs(t, err, ErrBadURL)
	})
}

package server_test

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/filesystem"
	"github.com/sagarc03/mediareceiver/page"
	"github.com/sagarc03/mediareceiver/server"
)

type recorder struct {
	mu       sync.Mutex
	statuses []bool
	visitors []int64
	files    []int64
	logs     []string
}

func (r *recorder) OnStatusChanged(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, running)
}

func (r *recorder) OnVisitorCount(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visitors = append(r.visitors, n)
}

func (r *recorder) OnFileCount(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, n)
}

func (r *recorder) OnLog(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recorder) Statuses() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.statuses...)
}

func (r *recorder) Files() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.files...)
}

type testServer struct {
	srv      *server.Server
	addr     string
	storage  string
	observer *recorder
}

func startServer(t *testing.T, cfg server.Config) *testServer {
	t.Helper()

	dir := t.TempDir()
	store, closeRoot, err := filesystem.Open(dir)
	require.NoError(t, err)
	t.Cleanup(closeRoot)

	svc, err := mediareceiver.NewUploadService(nil, store, mediareceiver.ServiceConfig{})
	require.NoError(t, err)

	rec := &recorder{}
	cfg.Addr = "127.0.0.1:0"
	srv := server.New(svc, page.NewEngine(""), rec, cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		_ = srv.Close()
	})

	return &testServer{
		srv:      srv,
		addr:     srv.Addr().String(),
		storage:  filepath.Join(dir, filesystem.AppDir),
		observer: rec,
	}
}

type result struct {
	status int
	header http.Header
	body   string
}

// roundTrip writes raw on a fresh connection and parses whatever comes back.
func roundTrip(t *testing.T, addr string, raw []byte) result {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = conn.Write(raw)
	require.NoError(t, err)

	return readResult(t, conn)
}

func readResult(t *testing.T, conn net.Conn) result {
	t.Helper()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	declared, err := strconv.Atoi(resp.Header.Get("Content-Length"))
	require.NoError(t, err)
	assert.Equal(t, len(body), declared, "Content-Length must match body")

	return result{status: resp.StatusCode, header: resp.Header, body: string(body)}
}

func get(t *testing.T, addr string) result {
	t.Helper()
	return roundTrip(t, addr, []byte("GET / HTTP/1.1\r\nHost: test\r\n\r\n"))
}

// fetchStatus is a goroutine-safe GET returning only the status code.
func fetchStatus(addr string) (int, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
		return 0, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, err
}

type filePart struct {
	name    string
	content []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func postRequest(contentType string, body []byte, declared int) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "POST / HTTP/1.1\r\nHost: test\r\n")
	if contentType != "" {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	}
	if declared >= 0 {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", declared)
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// storedFiles lists regular files under the storage directory.
func storedFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestGet_ServesUploadPage(t *testing.T) {
	ts := startServer(t, server.Config{})

	res := get(t, ts.addr)

	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "text/html; charset=utf-8", res.header.Get("Content-Type"))
	assert.Equal(t, "close", res.header.Get("Connection"))
	assert.Equal(t, "MediaReceiverPro", res.header.Get("Server"))
	assert.Contains(t, res.body, "127.0.0.1")
	assert.Contains(t, res.body, ">1<")
	assert.NotRegexp(t, `\{\{[A-Z_]+\}\}`, res.body)
}

func TestGet_VisitorsCountUp(t *testing.T) {
	ts := startServer(t, server.Config{})

	first := get(t, ts.addr)
	second := get(t, ts.addr)

	assert.Contains(t, first.body, "Visitor #:</strong> 1")
	assert.Contains(t, second.body, "Visitor #:</strong> 2")

	st := ts.srv.Status()
	assert.Equal(t, int64(2), st.Visitors)
	assert.Zero(t, st.Files)
}

func TestGet_ConcurrentVisitorsAllCounted(t *testing.T) {
	ts := startServer(t, server.Config{})
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := fetchStatus(ts.addr)
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, status)
		}()
	}
	wg.Wait()

	st := ts.srv.Status()
	assert.Equal(t, int64(n), st.Visitors)
	assert.Zero(t, st.Files)
}

func TestGet_AnyPathServesPage(t *testing.T) {
	ts := startServer(t, server.Config{})

	res := roundTrip(t, ts.addr, []byte("GET /anything?x=1 HTTP/1.1\r\n\r\n"))

	assert.Equal(t, http.StatusOK, res.status)
}

func TestGet_UsesExternalTemplate(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(tmpl, []byte("<p>{{CLIENT_IP}}|{{VISITOR_NUMBER}}|{{TOTAL_FILES}}</p>"), 0o644))

	dir := t.TempDir()
	store, closeRoot, err := filesystem.Open(dir)
	require.NoError(t, err)
	defer closeRoot()
	svc, err := mediareceiver.NewUploadService(nil, store, mediareceiver.ServiceConfig{})
	require.NoError(t, err)

	srv := server.New(svc, page.NewEngine(tmpl), nil, server.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	defer func() {
		_ = srv.Close()
	}()

	res := get(t, srv.Addr().String())
	assert.Equal(t, "<p>127.0.0.1|1|0</p>", res.body)
}

func TestPost_StoresImage(t *testing.T) {
	ts := startServer(t, server.Config{})

	content := bytes.Repeat([]byte{0xAB}, 2048)
	body, ct := multipartBody(t, map[string]string{"note": "hi"}, filePart{"photo.JPG", content})

	res := roundTrip(t, ts.addr, postRequest(ct, body, len(body)))

	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Contains(t, res.body, "photo.JPG")
	assert.Contains(t, res.body, "2.0 KB")

	files := storedFiles(t, ts.storage)
	require.Len(t, files, 1)
	assert.Regexp(t, regexp.MustCompile(`^images/\d{8}_\d{6}_photo\.JPG$`), files[0])

	data, err := os.ReadFile(filepath.Join(ts.storage, filepath.FromSlash(files[0])))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	assert.Equal(t, int64(1), ts.srv.Status().Files)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{1}, ts.observer.Files())
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPost_MultipleFilesClassified(t *testing.T) {
	ts := startServer(t, server.Config{})

	body, ct := multipartBody(t, nil,
		filePart{"clip.mp4", []byte("video")},
		filePart{"song.mp3", []byte("audio")},
		filePart{"report.pdf", []byte("doc")},
		filePart{"archive.zip", []byte("other")},
	)

	res := roundTrip(t, ts.addr, postRequest(ct, body, len(body)))
	require.Equal(t, http.StatusOK, res.status, res.body)

	files := storedFiles(t, ts.storage)
	require.Len(t, files, 4)

	dirs := make(map[string]bool)
	for _, f := range files {
		dirs[strings.SplitN(f, "/", 2)[0]] = true
	}
	assert.Equal(t, map[string]bool{"videos": true, "audio": true, "documents": true, "other": true}, dirs)
	assert.Equal(t, int64(4), ts.srv.Status().Files)
}

func TestPost_UnsafeNameSanitized(t *testing.T) {
	ts := startServer(t, server.Config{})

	body, ct := multipartBody(t, nil, filePart{"my photo (1)é.png", []byte("x")})
	res := roundTrip(t, ts.addr, postRequest(ct, body, len(body)))
	require.Equal(t, http.StatusOK, res.status, res.body)

	files := storedFiles(t, ts.storage)
	require.Len(t, files, 1)

	name := strings.TrimPrefix(files[0], "images/")
	assert.Regexp(t, `^\d{8}_\d{6}_[A-Za-z0-9._-]+$`, name)
	assert.Equal(t, "my_photo__1__.png", name[16:])
}

func TestPost_Rejected(t *testing.T) {
	body, ct := multipartBody(t, nil, filePart{"a.jpg", []byte("data")})
	fieldsOnly, fieldsCT := multipartBody(t, map[string]string{"note": "no file"})
	// Ends right after a part delimiter, without the closing dashes.
	unclosed := body[:len(body)-len("--\r\n")]
	padded := append(append([]byte{}, unclosed...), "  "...)

	tests := []struct {
		name       string
		raw        []byte
		wantStatus int
	}{
		{"missing boundary", postRequest("multipart/form-data", body, len(body)), http.StatusBadRequest},
		{"not multipart", postRequest("application/json", []byte("{}"), 2), http.StatusBadRequest},
		{"no content type", postRequest("", body, len(body)), http.StatusBadRequest},
		{"zero file parts", postRequest(fieldsCT, fieldsOnly, len(fieldsOnly)), http.StatusBadRequest},
		{"empty body", postRequest(ct, nil, 0), http.StatusBadRequest},
		{"missing content length", postRequest(ct, nil, -1), http.StatusBadRequest},
		{"garbage body", postRequest(ct, []byte("not multipart at all"), 20), http.StatusBadRequest},
		{"ends at a part delimiter", postRequest(ct, unclosed, len(unclosed)), http.StatusBadRequest},
		{"ends at a padded part delimiter", postRequest(ct, padded, len(padded)), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t, server.Config{})

			res := roundTrip(t, ts.addr, tt.raw)

			assert.Equal(t, tt.wantStatus, res.status)
			assert.Empty(t, storedFiles(t, ts.storage))
			assert.Zero(t, ts.srv.Status().Files)
			assert.Empty(t, ts.observer.Files())
		})
	}
}

func TestPost_TruncatedBodyDiscardsPartialFile(t *testing.T) {
	ts := startServer(t, server.Config{})

	body, ct := multipartBody(t, nil, filePart{"movie.mkv", bytes.Repeat([]byte("v"), 64<<10)})
	raw := postRequest(ct, body[:len(body)/2], len(body))

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = conn.Write(raw)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	res := readResult(t, conn)

	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Empty(t, storedFiles(t, ts.storage))
	assert.Zero(t, ts.srv.Status().Files)
}

func TestPost_TooLarge(t *testing.T) {
	ts := startServer(t, server.Config{MaxUploadSize: 1024})

	body, ct := multipartBody(t, nil, filePart{"big.bin", bytes.Repeat([]byte("b"), 4096)})
	res := roundTrip(t, ts.addr, postRequest(ct, body, len(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, res.status)
	assert.Contains(t, res.body, "1.0 KB")
	assert.Empty(t, storedFiles(t, ts.storage))
}

func TestPost_SameNameTwiceKeepsBoth(t *testing.T) {
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)

	dir := t.TempDir()
	store, closeRoot, err := filesystem.Open(dir)
	require.NoError(t, err)
	defer closeRoot()
	svc, err := mediareceiver.NewUploadService(nil, store, mediareceiver.ServiceConfig{Now: func() time.Time { return fixed }})
	require.NoError(t, err)

	srv := server.New(svc, nil, nil, server.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	defer func() {
		_ = srv.Close()
	}()

	for i := 0; i < 2; i++ {
		body, ct := multipartBody(t, nil, filePart{"same.txt", []byte(fmt.Sprintf("copy %d", i))})
		res := roundTrip(t, srv.Addr().String(), postRequest(ct, body, len(body)))
		require.Equal(t, http.StatusOK, res.status)
	}

	assert.ElementsMatch(t, []string{
		"documents/20240506_070809_same.txt",
		"documents/20240506_070809_same_1.txt",
	}, storedFiles(t, filepath.Join(dir, filesystem.AppDir)))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := startServer(t, server.Config{})

	for _, method := range []string{"PUT", "DELETE", "HEAD", "OPTIONS"} {
		t.Run(method, func(t *testing.T) {
			res := roundTrip(t, ts.addr, []byte(method+" / HTTP/1.1\r\n\r\n"))

			assert.Equal(t, http.StatusMethodNotAllowed, res.status)
			assert.Equal(t, "GET, POST", res.header.Get("Allow"))
		})
	}
}

func TestBadRequests(t *testing.T) {
	ts := startServer(t, server.Config{})

	tests := []struct {
		name string
		raw  string
	}{
		{"single token request line", "GARBAGE\r\n\r\n"},
		{"request line too long", "GET /" + strings.Repeat("a", 9000) + " HTTP/1.1\r\n\r\n"},
		{"too many headers", "GET / HTTP/1.1\r\n" + strings.Repeat("X-A: b\r\n", 101) + "\r\n"},
		{"chunked post", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := roundTrip(t, ts.addr, []byte(tt.raw))
			assert.Equal(t, http.StatusBadRequest, res.status)
		})
	}
}

func TestMalformedHeaderLinesIgnored(t *testing.T) {
	ts := startServer(t, server.Config{})

	res := roundTrip(t, ts.addr, []byte("GET / HTTP/1.1\r\nno colon here\r\n: empty name\r\nHost: x\r\n\r\n"))

	assert.Equal(t, http.StatusOK, res.status)
}

func TestHeadersAreCaseInsensitive(t *testing.T) {
	ts := startServer(t, server.Config{})

	body, ct := multipartBody(t, nil, filePart{"a.gif", []byte("gif")})
	raw := fmt.Sprintf("POST / HTTP/1.1\r\ncontent-TYPE: %s\r\nCONTENT-length: %d\r\n\r\n%s", ct, len(body), body)

	res := roundTrip(t, ts.addr, []byte(raw))

	assert.Equal(t, http.StatusOK, res.status, res.body)
}

func TestLFOnlyLineEndings(t *testing.T) {
	ts := startServer(t, server.Config{})

	res := roundTrip(t, ts.addr, []byte("GET / HTTP/1.0\nHost: x\n\n"))

	assert.Equal(t, http.StatusOK, res.status)
}

func TestDisconnectBeforeRequestLine(t *testing.T) {
	ts := startServer(t, server.Config{})

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// A later request still works and is the first visitor.
	res := get(t, ts.addr)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, int64(1), ts.srv.Status().Visitors)
}

func TestStalledConnectionDoesNotBlockOthers(t *testing.T) {
	ts := startServer(t, server.Config{})

	stalled, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer stalled.Close()
	_, err = stalled.Write([]byte("GET / HTT"))
	require.NoError(t, err)

	res := get(t, ts.addr)
	assert.Equal(t, http.StatusOK, res.status)
}

func TestMaxConnections_RejectsOverflow(t *testing.T) {
	ts := startServer(t, server.Config{MaxConnections: 1})

	body, ct := multipartBody(t, nil, filePart{"held.txt", []byte("held open")})
	raw := postRequest(ct, body, len(body))
	headerEnd := len(raw) - len(body)

	stalled, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer stalled.Close()
	require.NoError(t, stalled.SetDeadline(time.Now().Add(10*time.Second)))
	_, err = stalled.Write(raw[:headerEnd])
	require.NoError(t, err)

	// Wait until the stalled connection holds the only slot.
	require.Eventually(t, func() bool {
		return ts.srv.Status().Visitors == 1
	}, 5*time.Second, 10*time.Millisecond)

	res := get(t, ts.addr)
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
	assert.Equal(t, int64(1), ts.srv.Status().Visitors)

	// Finishing the first request frees the slot.
	_, err = stalled.Write(raw[headerEnd:])
	require.NoError(t, err)
	first := readResult(t, stalled)
	assert.Equal(t, http.StatusOK, first.status)

	assert.Eventually(t, func() bool {
		return get(t, ts.addr).status == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLifecycle(t *testing.T) {
	ts := startServer(t, server.Config{})

	assert.True(t, ts.srv.IsRunning())
	assert.ErrorIs(t, ts.srv.Start(), mediareceiver.ErrAlreadyRunning)

	body, ct := multipartBody(t, nil, filePart{"a.png", []byte("png")})
	roundTrip(t, ts.addr, postRequest(ct, body, len(body)))
	get(t, ts.addr)

	st := ts.srv.Status()
	assert.True(t, st.Running)
	assert.Equal(t, ts.addr, st.Addr)
	assert.Equal(t, int64(2), st.Visitors)
	assert.Equal(t, int64(1), st.Files)

	require.NoError(t, ts.srv.Stop())
	assert.False(t, ts.srv.IsRunning())
	assert.Nil(t, ts.srv.Addr())
	assert.ErrorIs(t, ts.srv.Stop(), mediareceiver.ErrNotRunning)

	_, err := net.Dial("tcp", ts.addr)
	assert.Error(t, err)

	stopped := ts.srv.Status()
	assert.False(t, stopped.Running)
	assert.Equal(t, int64(2), stopped.Visitors)

	// A restarted server starts a fresh session.
	require.NoError(t, ts.srv.Start())
	st = ts.srv.Status()
	assert.Zero(t, st.Visitors)
	assert.Zero(t, st.Files)

	res := get(t, ts.srv.Addr().String())
	assert.Contains(t, res.body, "Visitor #:</strong> 1")

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]bool{true, false, true}, ts.observer.Statuses())
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_BindFailureReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dir := t.TempDir()
	store, closeRoot, err := filesystem.Open(dir)
	require.NoError(t, err)
	defer closeRoot()
	svc, err := mediareceiver.NewUploadService(nil, store, mediareceiver.ServiceConfig{})
	require.NoError(t, err)

	rec := &recorder{}
	srv := server.New(svc, nil, rec, server.Config{Addr: ln.Addr().String()})

	err = srv.Start()
	require.Error(t, err)
	assert.False(t, srv.IsRunning())

	require.NoError(t, srv.Close())
	assert.Equal(t, []bool{false}, rec.Statuses())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.logs, 1)
	assert.Contains(t, rec.logs[0], "Failed to start server")
}

func TestStop_DoesNotInterruptInFlight(t *testing.T) {
	ts := startServer(t, server.Config{})

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	body, ct := multipartBody(t, nil, filePart{"late.txt", []byte("finished after stop")})
	raw := postRequest(ct, body, len(body))
	_, err = conn.Write(raw[:len(raw)-10])
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ts.srv.Status().Visitors == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, ts.srv.Stop())

	_, err = conn.Write(raw[len(raw)-10:])
	require.NoError(t, err)

	res := readResult(t, conn)
	assert.Equal(t, http.StatusOK, res.status)

	ts.srv.Wait()
	assert.Len(t, storedFiles(t, ts.storage), 1)
}

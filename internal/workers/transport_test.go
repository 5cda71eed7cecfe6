package workers

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrec/internal/models"
)

func TestMultipartRequestLength(t *testing.T) {
	video := strings.Repeat("v", 10_000)
	req, err := NewMultipartRequest([]Part{
		{Field: "video", FileName: "a.mp4", ContentType: "video/mp4", Body: strings.NewReader(video), Size: int64(len(video))},
		{Field: "metadata", FileName: `we"ird.json`, Body: strings.NewReader("{}"), Size: 2},
	})
	require.NoError(t, err)

	var received []byte
	var contentType string
	var contentLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		contentLength = r.ContentLength
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(" queued \n"))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var calls []int64
	resp, err := req.Send(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Key": "k"}, func(done, total int64) {
		mu.Lock()
		calls = append(calls, done)
		mu.Unlock()
		assert.Equal(t, req.Total(), total)
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", resp.Body)
	assert.Equal(t, req.Total(), int64(len(received)))
	assert.Equal(t, req.Total(), contentLength)

	mu.Lock()
	require.NotEmpty(t, calls)
	assert.Equal(t, req.Total(), calls[len(calls)-1])
	mu.Unlock()

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	mr := multipart.NewReader(bytes.NewReader(received), params["boundary"])

	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "video", part.FormName())
	assert.Equal(t, "a.mp4", part.FileName())
	data, _ := io.ReadAll(part)
	assert.Equal(t, video, string(data))

	part, err = mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "metadata", part.FormName())
	assert.Equal(t, "application/octet-stream", part.Header.Get("Content-Type"))
	data, _ = io.ReadAll(part)
	assert.Equal(t, "{}", string(data))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestQueueOrderAndBlocking(t *testing.T) {
	q := NewQueue()
	q.Push(job{id: "a"})
	q.Push(job{id: "b"})
	assert.Equal(t, 2, q.Len())

	j, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", j.id)
	j, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", j.id)

	got := make(chan string)
	go func() {
		j, ok := q.Pop()
		if ok {
			got <- j.id
		}
		close(got)
	}()
	select {
	case <-got:
		t.Fatal("Pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}
	q.Push(job{id: "c"})
	assert.Equal(t, "c", <-got)
}

func TestQueueClearAndClose(t *testing.T) {
	q := NewQueue()
	q.Push(job{id: "a"})
	q.Push(job{id: "b"})
	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())

	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	q.Push(job{id: "c"})
	assert.True(t, <-done)

	q.Push(job{id: "d"})
	assert.Equal(t, 1, q.Close())
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.False(t, q.Push(job{id: "e"}))
}

// countingRepo counts saves without persisting anything
type countingRepo struct {
	*recordingRepo
	mu    sync.Mutex
	saves int
}

func (r *countingRepo) Save(ctx context.Context, c models.Capture) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return nil
}

func TestProgressIsThrottled(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &countingRepo{recordingRepo: newRecordingRepo()}
	p, err := NewPipeline(Config{Clock: func() time.Time { return now }}, repo)
	require.NoError(t, err)

	up := models.NewScheduledUpload("http://collector", now)
	up, err = up.Begin(now)
	require.NoError(t, err)
	c := models.Capture{ID: "x", Upload: &up}
	tracker := &progressTracker{p: p, j: job{id: "x"}, capture: c, interval: time.Second, last: now}

	tracker.update(10, 100)
	assert.Equal(t, 0, repo.saves)

	now = now.Add(500 * time.Millisecond)
	tracker.update(20, 100)
	assert.Equal(t, 0, repo.saves)

	now = now.Add(600 * time.Millisecond)
	tracker.update(50, 100)
	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, int64(50), tracker.capture.Upload.Transferred)

	// completion is always persisted
	tracker.update(100, 100)
	assert.Equal(t, 2, repo.saves)

	final := tracker.finish(context.Background(), func(u models.Upload, at time.Time) (models.Upload, error) {
		return u.Complete(at)
	})
	assert.Equal(t, models.UploadFinished, final.State)
	assert.Equal(t, 3, repo.saves)

	// late callbacks from the transport are ignored
	tracker.update(100, 100)
	assert.Equal(t, 3, repo.saves)
}

package watcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rf-checker/rf-checker-go/internal/service"
	"github.com/rf-checker/rf-checker-go/internal/worker"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []*worker.Job
	err  error
}

func (s *recordingSubmitter) SubmitAndWait(_ context.Context, job *worker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return s.err
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func TestParseCheckFile(t *testing.T) {
	input := `# weekly batch
https://shop.ru

game: Hades
example.com
text: first line
text: second line
`
	req, err := ParseCheckFile(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.ru", "example.com"}, req.URLs)
	assert.Equal(t, "Hades", req.GameName)
	assert.Equal(t, "first line\nsecond line", req.Text)

	_, err = ParseCheckFile(strings.NewReader("javascript:alert(1)\n"))
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}

func TestFileWatcher_ProcessesInboxFile(t *testing.T) {
	dir := t.TempDir()
	sub := &recordingSubmitter{}

	fw, err := NewFileWatcher(dir, "*.txt", 20*time.Millisecond, NewJobHandler(sub), quietLogger())
	require.NoError(t, err)
	fw.readyPoll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.csv"), []byte("example.ru\n"), 0o644))
	path := filepath.Join(dir, "batch-7.txt")
	require.NoError(t, os.WriteFile(path, []byte("example.ru\ngame: Hades\n"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(path + DoneSuffix)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, sub.count())
	job := sub.jobs[0]
	assert.Equal(t, "batch-7", job.Name)
	assert.Equal(t, worker.SourceWatcher, job.Source)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, []string{"example.ru"}, job.Request.URLs)
	assert.Equal(t, "Hades", job.Request.GameName)

	_, err = os.Stat(filepath.Join(dir, "ignored.csv"))
	assert.NoError(t, err)
}

func TestFileWatcher_PicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "left-over.txt")
	require.NoError(t, os.WriteFile(path, []byte("example.ru\n"), 0o644))

	sub := &recordingSubmitter{}
	fw, err := NewFileWatcher(dir, "*.txt", time.Hour, NewJobHandler(sub), quietLogger())
	require.NoError(t, err)
	fw.readyPoll = 5 * time.Millisecond
	defer fw.Stop()

	require.NoError(t, fw.Start(context.Background()))
	require.Eventually(t, func() bool { return sub.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_FailedFileStaysInInbox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(path, []byte("example.ru\n"), 0o644))

	sub := &recordingSubmitter{err: errors.New("pool stopped")}
	fw, err := NewFileWatcher(dir, "*.txt", time.Hour, NewJobHandler(sub), quietLogger())
	require.NoError(t, err)
	fw.readyPoll = 5 * time.Millisecond
	defer fw.Stop()

	fw.handleFile(context.Background(), path)

	assert.Equal(t, 1, sub.count())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileWatcher_MatchPattern(t *testing.T) {
	fw := &FileWatcher{pattern: "*.txt"}
	assert.True(t, fw.matchPattern("urls.TXT"))
	assert.False(t, fw.matchPattern("urls.txt.done"))
	assert.False(t, fw.matchPattern("urls.csv"))

	fw.pattern = "*"
	assert.True(t, fw.matchPattern("anything"))
	assert.False(t, fw.matchPattern("anything.done"))

	fw.pattern = "inbox.list"
	assert.True(t, fw.matchPattern("inbox.list"))
}

package recording

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/repository"
	"testrec/internal/storage"
)

type fakeRecorder struct {
	mu       sync.Mutex
	out      io.Writer
	started  int
	stopped  int
	startErr error
}

func (r *fakeRecorder) Start(_ context.Context, _ models.Capture, _ *models.Rect, out io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started++
	r.out = out
	_, err := out.Write([]byte("frames"))
	return err
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	r.out = nil
	return nil
}

type fakeScheduler struct {
	ids []string
}

func (s *fakeScheduler) Schedule(_ context.Context, id string) (models.UploadStatus, error) {
	s.ids = append(s.ids, id)
	return models.UploadStatus{ID: id, State: models.UploadScheduled}, nil
}

type failingSaveRepo struct {
	repository.Repository
	fail bool
}

func (r *failingSaveRepo) Save(ctx context.Context, c models.Capture) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.Repository.Save(ctx, c)
}

type serviceFixture struct {
	svc      *Service
	repo     *failingSaveRepo
	recorder *fakeRecorder
	uploads  *fakeScheduler
}

func newServiceFixture(t *testing.T, auto bool) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:     &failingSaveRepo{Repository: repository.NewStorageRepository(storage.NewMemoryStorage())},
		recorder: &fakeRecorder{},
		uploads:  &fakeScheduler{},
	}
	info := StaticInfo{Value: models.Info{Project: "Acme"}}
	f.svc = NewService(info, f.repo, ServiceOptions{
		Recorder:   f.recorder,
		Scheduler:  f.uploads,
		AutoUpload: auto,
		Clock:      newFakeClock().Now,
		IDs:        fixedIDs("abc123"),
	})
	return f
}

func readVideo(t *testing.T, repo repository.Repository, c models.Capture) (string, error) {
	t.Helper()
	r, _, err := repo.OpenArtifact(context.Background(), c, repository.ArtifactVideo)
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return string(data), err
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	view := f.svc.Current()
	assert.Equal(t, models.StateIdle, view.State)

	view, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, view.State)
	assert.Empty(t, view.Folder)
	assert.Equal(t, 0, f.recorder.started)

	view, err = f.svc.Record(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateRecording, view.State)
	assert.Equal(t, "acme/bob_feature/dave_scenario/"+view.ID, view.Folder)
	assert.Equal(t, 1, f.recorder.started)

	// recording twice does not restart the engine
	again, err := f.svc.Record(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID)
	assert.Equal(t, 1, f.recorder.started)

	view, err = f.svc.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateStopped, view.State)
	require.NotNil(t, view.Finished)
	assert.Positive(t, view.DurationMillis)
	assert.Equal(t, 1, f.recorder.stopped)

	view, err = f.svc.Finish(ctx, FinishParams{TestStatus: "fail", TestError: "assertion failed"})
	require.NoError(t, err)
	assert.Equal(t, models.StateFinished, view.State)
	assert.Equal(t, "fail", view.TestStatus)

	saved, err := f.repo.FindByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "assertion failed", saved.TestError)
	video, err := readVideo(t, f.repo, saved)
	require.NoError(t, err)
	assert.Equal(t, "frames", video)
	assert.Empty(t, f.uploads.ids)
}

func TestServiceStartWithRecordFlag(t *testing.T) {
	f := newServiceFixture(t, false)
	params := bobParams()
	params.Record = true
	view, err := f.svc.Start(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, models.StateRecording, view.State)
	assert.NotEmpty(t, view.ID)
}

func TestServiceFinishFromRecordingStopsEngine(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, true)
	_, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, nil)
	require.NoError(t, err)

	view, err := f.svc.Finish(ctx, FinishParams{TestStatus: "pass"})
	require.NoError(t, err)
	assert.Equal(t, models.StateFinished, view.State)
	assert.NotNil(t, view.Finished)
	assert.Equal(t, 1, f.recorder.stopped)
	assert.Equal(t, []string{view.ID}, f.uploads.ids)
}

func TestServiceFinishValidationKeepsRecording(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)
	_, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, nil)
	require.NoError(t, err)

	view, err := f.svc.Finish(ctx, FinishParams{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParameter))
	assert.Equal(t, models.StateRecording, view.State)
	assert.Equal(t, 0, f.recorder.stopped)
}

func TestServiceFinishSaveFailureLeavesStopped(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)
	_, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, nil)
	require.NoError(t, err)

	f.repo.fail = true
	view, err := f.svc.Finish(ctx, FinishParams{TestStatus: "pass"})
	require.Error(t, err)
	assert.Equal(t, models.StateStopped, view.State)

	f.repo.fail = false
	view, err = f.svc.Finish(ctx, FinishParams{TestStatus: "pass"})
	require.NoError(t, err)
	assert.Equal(t, models.StateFinished, view.State)
}

func TestServiceRecorderFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)
	f.recorder.startErr = errors.New("no display")
	_, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)

	view, err := f.svc.Record(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, models.StateStarted, view.State)
	keys, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestServiceCancelFromEveryState(t *testing.T) {
	ctx := context.Background()
	steps := map[models.State]func(f *serviceFixture){
		models.StateIdle: func(*serviceFixture) {},
		models.StateStarted: func(f *serviceFixture) {
			_, err := f.svc.Start(ctx, bobParams())
			require.NoError(t, err)
		},
		models.StateRecording: func(f *serviceFixture) {
			_, err := f.svc.Start(ctx, bobParams())
			require.NoError(t, err)
			_, err = f.svc.Record(ctx, nil)
			require.NoError(t, err)
		},
		models.StateStopped: func(f *serviceFixture) {
			_, err := f.svc.Start(ctx, bobParams())
			require.NoError(t, err)
			_, err = f.svc.Record(ctx, nil)
			require.NoError(t, err)
			_, err = f.svc.Stop(ctx)
			require.NoError(t, err)
		},
		models.StateFinished: func(f *serviceFixture) {
			_, err := f.svc.Start(ctx, bobParams())
			require.NoError(t, err)
			_, err = f.svc.Finish(ctx, FinishParams{TestStatus: "pass"})
			require.Error(t, err)
			_, err = f.svc.Record(ctx, nil)
			require.NoError(t, err)
			_, err = f.svc.Finish(ctx, FinishParams{TestStatus: "pass"})
			require.NoError(t, err)
		},
	}

	for state, setup := range steps {
		t.Run(string(state), func(t *testing.T) {
			f := newServiceFixture(t, false)
			setup(f)
			require.Equal(t, state, f.svc.Current().State)
			before := f.svc.Status().Capture()

			view := f.svc.Cancel(ctx)
			assert.Equal(t, models.CaptureView{State: models.StateIdle}, view)
			assert.Equal(t, models.Capture{}, f.svc.Status().Capture())

			if state == models.StateRecording || state == models.StateStopped {
				_, err := readVideo(t, f.repo, before)
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState), "video should be discarded")
			}
			if state == models.StateFinished {
				_, err := f.repo.FindByID(ctx, before.ID)
				assert.NoError(t, err)
				_, err = readVideo(t, f.repo, before)
				assert.NoError(t, err)
			}
			if state == models.StateRecording {
				assert.Equal(t, 1, f.recorder.stopped)
			}
		})
	}
}

func TestServiceRestartAfterCancel(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)
	_, err := f.svc.Start(ctx, bobParams())
	require.NoError(t, err)
	f.svc.Cancel(ctx)

	view, err := f.svc.Start(ctx, StartParams{Feature: "Next", Scenario: "Run"})
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, view.State)
	assert.Equal(t, "Next", view.Feature)
}

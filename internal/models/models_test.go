package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "testrec/internal/errors"
)

func TestCategoriesKeepOrder(t *testing.T) {
	cats := Categories{}.Set("project", "acme").Set("suite", "smoke").Set("browser", "chrome")

	data, err := json.Marshal(cats)
	require.NoError(t, err)
	assert.Equal(t, `{"project":"acme","suite":"smoke","browser":"chrome"}`, string(data))

	var decoded Categories
	require.NoError(t, json.Unmarshal([]byte(`{"z":"1","a":"2","m":"3"}`), &decoded))
	assert.Equal(t, []string{"1", "2", "3"}, decoded.Values())

	// repeated keys keep the first position and the last value
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1","b":"2","a":"3"}`), &decoded))
	assert.Equal(t, Categories{{"a", "3"}, {"b", "2"}}, decoded)
}

func TestCategoriesNullAndErrors(t *testing.T) {
	cats := Categories{{"a", "1"}}
	require.NoError(t, json.Unmarshal([]byte(`null`), &cats))
	assert.Nil(t, cats)

	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &cats))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &cats))

	var c Capture
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x"}`), &c))
	assert.Nil(t, c.Categories)
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "categories")
}

func TestCategoriesGetSet(t *testing.T) {
	cats := Categories{}.Set("suite", "smoke")
	v, ok := cats.Get("suite")
	assert.True(t, ok)
	assert.Equal(t, "smoke", v)

	cats = cats.Set("suite", "regression")
	assert.Len(t, cats, 1)
	v, _ = cats.Get("suite")
	assert.Equal(t, "regression", v)

	_, ok = cats.Get("browser")
	assert.False(t, ok)
}

func TestCaptureCloneIsDeep(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	up := NewScheduledUpload("http://collector", now)
	orig := Capture{
		ID:         "id",
		Categories: Categories{{"suite", "smoke"}},
		Meta:       map[string]string{"build": "1"},
		Started:    &now,
		Upload:     &up,
	}

	clone := orig.Clone()
	clone.Categories[0].Value = "changed"
	clone.Meta["build"] = "2"
	*clone.Started = now.Add(time.Hour)
	clone.Upload.State = UploadError

	assert.Equal(t, "smoke", orig.Categories[0].Value)
	assert.Equal(t, "1", orig.Meta["build"])
	assert.Equal(t, now, *orig.Started)
	assert.Equal(t, UploadScheduled, orig.Upload.State)
}

func TestUploadTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	u := NewScheduledUpload("http://collector", now)
	assert.True(t, u.Active())

	_, err := u.Complete(now)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))
	_, err = u.Progress(now, 1, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	u, err = u.Begin(now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, UploadUploading, u.State)
	_, err = u.Begin(now)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	u, err = u.Progress(now.Add(2*time.Second), 50, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Transferred)

	done, err := u.Complete(now.Add(3 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, UploadFinished, done.State)
	assert.Equal(t, int64(100), done.Transferred)
	assert.False(t, done.Active())

	failed, err := u.Fail(now.Add(3*time.Second), "collector responded 500", 500)
	require.NoError(t, err)
	assert.Equal(t, UploadError, failed.State)
	assert.Equal(t, 500, failed.StatusCode)
	assert.Equal(t, now.Add(3*time.Second), *failed.Updated)
	assert.Nil(t, failed.Finished)

	// the source value is untouched by transitions
	assert.Equal(t, UploadUploading, u.State)
}

func TestSummarizeAndDuration(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := Capture{ID: "id", Folder: "f/id", Feature: "feat", Started: &start, TestStatus: "pass"}

	assert.Equal(t, 5*time.Second, Duration(c, start.Add(5*time.Second)))
	assert.Zero(t, Duration(Capture{}, start))

	end := start.Add(2 * time.Second)
	c.Finished = &end
	assert.Equal(t, 2*time.Second, Duration(c, start.Add(time.Hour)))

	s := Summarize(c)
	assert.Equal(t, "f/id", s.Folder)
	assert.Empty(t, s.UploadState)
	assert.Nil(t, NewUploadStatus(c))

	up := NewScheduledUpload("http://collector", end)
	c.Upload = &up
	assert.Equal(t, UploadScheduled, Summarize(c).UploadState)
	status := NewUploadStatus(c)
	require.NotNil(t, status)
	assert.Equal(t, "id", status.ID)
}

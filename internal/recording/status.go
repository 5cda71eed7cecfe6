// Package recording holds the capture lifecycle: an immutable state machine
// of CaptureStatus snapshots and the service that owns the current one.
package recording

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Clock returns the current time
type Clock func() time.Time

// StartParams are the caller's inputs to Start
type StartParams struct {
	Project     string            `json:"project"`
	Feature     string            `json:"feature" validate:"required"`
	Scenario    string            `json:"scenario" validate:"required"`
	Description string            `json:"description"`
	Categories  models.Categories `json:"categories"`
	Meta        map[string]string `json:"meta"`
	// Record starts recording right after Start
	Record  bool         `json:"record"`
	Display *models.Rect `json:"display"`
}

func (p StartParams) clone() StartParams {
	out := p
	out.Categories = p.Categories.Clone()
	out.Meta = copyMeta(p.Meta)
	if p.Display != nil {
		d := *p.Display
		out.Display = &d
	}
	return out
}

// FinishParams carry the test outcome
type FinishParams struct {
	TestStatus     string            `json:"testStatus" validate:"required,oneof=pass fail skip error"`
	TestError      string            `json:"testError"`
	TestStackTrace string            `json:"testStackTrace"`
	TestLogs       string            `json:"testLogs"`
	Description    string            `json:"description"`
	Meta           map[string]string `json:"meta"`
}

type runtime struct {
	now   Clock
	newID IDGenerator
}

var defaultRuntime = &runtime{now: time.Now, newID: NewCaptureID}

// CaptureStatus is an immutable snapshot of a capture's progress. Every
// transition returns a new value; the receiver is never modified.
type CaptureStatus struct {
	state   models.State
	capture models.Capture
	params  StartParams
	display *models.Rect
	rt      *runtime
}

var idle = CaptureStatus{state: models.StateIdle, rt: defaultRuntime}

// Idle returns the idle snapshot using the system clock
func Idle() CaptureStatus {
	return idle
}

// IdleWith returns an idle snapshot whose successors use the given clock
// and id generator. Nil arguments fall back to the defaults.
func IdleWith(now Clock, newID IDGenerator) CaptureStatus {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = NewCaptureID
	}
	return CaptureStatus{state: models.StateIdle, rt: &runtime{now: now, newID: newID}}
}

func (s CaptureStatus) State() models.State { return s.state }

// Capture returns a copy of the snapshot's capture
func (s CaptureStatus) Capture() models.Capture { return s.capture.Clone() }

// Params returns a copy of the original start parameters
func (s CaptureStatus) Params() StartParams { return s.params.clone() }

// Display returns the rectangle passed to Record, if any
func (s CaptureStatus) Display() *models.Rect {
	if s.display == nil {
		return nil
	}
	d := *s.display
	return &d
}

func (s CaptureStatus) runtime() *runtime {
	if s.rt == nil {
		return defaultRuntime
	}
	return s.rt
}

// Start builds a new capture from the caller's parameters layered over the
// info defaults. It is legal from Idle and from Started (which restarts).
func (s CaptureStatus) Start(info *models.Info, params StartParams) (CaptureStatus, error) {
	if s.state != models.StateIdle && s.state != models.StateStarted {
		return s, apperrors.NewInvalidState(fmt.Sprintf("cannot start while %s", s.state))
	}
	if info == nil {
		return s, apperrors.NewInvalidParameter("environment info is missing")
	}

	params = params.clone()
	params.Project = strings.TrimSpace(params.Project)
	params.Feature = strings.TrimSpace(params.Feature)
	params.Scenario = strings.TrimSpace(params.Scenario)
	if err := validateParams(params); err != nil {
		return s, err
	}

	categories, err := resolveCategories(info, params)
	if err != nil {
		return s, err
	}

	project := params.Project
	if project == "" {
		project = info.Project
	}

	c := models.Capture{
		Project:     project,
		Feature:     params.Feature,
		Scenario:    params.Scenario,
		Description: strings.TrimSpace(params.Description),
		Categories:  categories,
		Environment: copyMeta(info.Environment),
		Format:      models.VideoFormat,
		Meta:        copyMeta(params.Meta),
	}

	return CaptureStatus{
		state:   models.StateStarted,
		capture: c,
		params:  params,
		rt:      s.runtime(),
	}, nil
}

// Record begins recording. It is the only transition that assigns the id
// and folder; calling it again while recording returns the receiver.
func (s CaptureStatus) Record(display *models.Rect) (CaptureStatus, error) {
	switch s.state {
	case models.StateRecording:
		return s, nil
	case models.StateStarted:
	default:
		return s, apperrors.NewInvalidState(fmt.Sprintf("cannot record while %s", s.state))
	}

	rt := s.runtime()
	now := rt.now()
	id, err := rt.newID(now)
	if err != nil {
		return s, apperrors.NewInternal(err)
	}

	c := s.capture.Clone()
	c.Started = &now
	c.ID = id
	c.Folder = BuildFolder(c.Categories, c.Feature, c.Scenario, id)

	next := s.with(models.StateRecording, c)
	if display != nil {
		d := *display
		next.display = &d
	}
	return next, nil
}

// Stop stamps the finish time of a recording. From any other state it is a
// no-op returning the receiver.
func (s CaptureStatus) Stop() CaptureStatus {
	if s.state != models.StateRecording {
		return s
	}
	now := s.runtime().now()
	c := s.capture.Clone()
	c.Finished = &now
	return s.with(models.StateStopped, c)
}

// Finish records the test outcome. From Recording it stops first.
func (s CaptureStatus) Finish(params FinishParams) (CaptureStatus, error) {
	if s.state != models.StateRecording && s.state != models.StateStopped {
		return s, apperrors.NewInvalidState(fmt.Sprintf("cannot finish while %s", s.state))
	}
	params.TestStatus = strings.ToLower(strings.TrimSpace(params.TestStatus))
	if err := validateParams(params); err != nil {
		return s, err
	}

	stopped := s.Stop()
	c := stopped.capture.Clone()
	c.Meta = mergeMeta(c.Meta, params.Meta)
	if desc := strings.TrimSpace(params.Description); desc != "" {
		c.Description = desc
	}
	c.TestStatus = params.TestStatus
	c.TestError = params.TestError
	c.TestStackTrace = params.TestStackTrace
	c.TestLogs = params.TestLogs

	return stopped.with(models.StateFinished, c), nil
}

func (s CaptureStatus) with(state models.State, c models.Capture) CaptureStatus {
	return CaptureStatus{
		state:   state,
		capture: c,
		params:  s.params,
		display: s.display,
		rt:      s.runtime(),
	}
}

// resolveCategories lays user values over configured defaults. Configured
// keys come first in configured order, then user-only keys in their order.
func resolveCategories(info *models.Info, params StartParams) (models.Categories, error) {
	resolved := models.Categories{}
	configured := make(map[string]bool, len(info.Categories))
	var missing []string

	project := params.Project
	if project == "" {
		project = info.Project
	}
	if _, ok := params.Categories.Get("project"); !ok && project != "" {
		resolved = resolved.Set("project", project)
	}

	for _, def := range info.Categories {
		configured[def.Key] = true
		value, _ := params.Categories.Get(def.Key)
		value = strings.TrimSpace(value)
		if value == "" {
			value = def.Default
		}
		if value == "" {
			if def.Required {
				missing = append(missing, def.Key)
			}
			continue
		}
		resolved = resolved.Set(def.Key, value)
	}
	if len(missing) > 0 {
		return nil, apperrors.NewInvalidParameter(fmt.Sprintf("missing required categories: %s", strings.Join(missing, ", ")))
	}

	for _, cat := range params.Categories {
		if configured[cat.Key] {
			continue
		}
		if value := strings.TrimSpace(cat.Value); value != "" {
			resolved = resolved.Set(cat.Key, value)
		}
	}
	if len(resolved) == 0 {
		return nil, nil
	}
	return resolved, nil
}

func validateParams(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", lowerFirst(fe.Field()), fe.Tag()))
		}
		appErr := apperrors.NewInvalidParameter("invalid parameters: " + strings.Join(fields, ", "))
		appErr.Details = map[string]any{"fields": fields}
		return appErr
	}
	return apperrors.NewInvalidParameter(err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeMeta returns base overlaid with override; override wins on collision
func mergeMeta(base, override map[string]string) map[string]string {
	out := copyMeta(base)
	if len(override) > 0 && out == nil {
		out = make(map[string]string, len(override))
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"meeting-insights-go/internal/audio"
	"meeting-insights-go/internal/inflight"
	"meeting-insights-go/internal/lifecycle"
	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/nlp"
	"meeting-insights-go/internal/notify"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/summarizer"
	"meeting-insights-go/internal/tracing"
	"meeting-insights-go/internal/transcription"
	"meeting-insights-go/internal/types"
)

var (
	// ErrDuplicateSubmission is returned when the same owner submits the same
	// upload while an earlier submission of it is still running.
	ErrDuplicateSubmission = errors.New("recording is already being processed")
	ErrNotPending          = errors.New("meeting is not pending")
	ErrMissingAudio        = errors.New("audio file path is required")
)

// Submission is one uploaded recording with its metadata. AudioPath points at
// the upload in temporary storage. SourceKey identifies the recording before
// it was renamed into temp storage (original name and size, or source path)
// and is what duplicate submissions are detected by; AudioPath is used when
// it is empty.
type Submission struct {
	OwnerID   string
	Title     string
	Category  string
	AudioPath string
	SourceKey string
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Store       store.Store
	Lifecycle   *lifecycle.Manager
	Audio       audio.Adapter
	Transcriber transcription.Adapter
	Linguistic  nlp.Adapter
	Summarizer  summarizer.Summarizer
	Notifier    notify.Sink
	InFlight    *inflight.Cache
}

type Options struct {
	MaxConcurrent int
	Retry         store.RetryPolicy
	// DefaultRetentionDays applies to owners without their own setting.
	DefaultRetentionDays *int
	NotifyTimeout        time.Duration
}

// Orchestrator runs meetings through audio normalization, transcription,
// linguistic analysis and summarization. Stages of one meeting run in order;
// different meetings run concurrently up to MaxConcurrent.
type Orchestrator struct {
	deps    Deps
	opts    Options
	tracker *Tracker
	sem     chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
}

func NewOrchestrator(deps Deps, opts Options, log *logrus.Entry) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	case deps.Lifecycle == nil:
		return nil, fmt.Errorf("pipeline: lifecycle manager is required")
	case deps.Audio == nil || deps.Transcriber == nil || deps.Linguistic == nil || deps.Summarizer == nil:
		return nil, fmt.Errorf("pipeline: all stage adapters are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogSink(log)
	}
	if deps.InFlight == nil {
		deps.InFlight = inflight.New(1024, 15*time.Minute)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = store.DefaultRetryPolicy()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		tracker: NewTracker(deps.Store, opts.Retry, log),
		sem:     make(chan struct{}, opts.MaxConcurrent),
		log:     log.WithField("component", "pipeline"),
	}, nil
}

// Create writes the PENDING record. No external service is called.
func (o *Orchestrator) Create(ctx context.Context, sub Submission) (types.Meeting, error) {
	if sub.AudioPath == "" {
		return types.Meeting{}, ErrMissingAudio
	}
	var m types.Meeting
	err := store.WithRetry(ctx, o.opts.Retry, o.log, func(ctx context.Context) error {
		created, err := o.deps.Store.CreateMeeting(ctx, types.NewMeeting{
			OwnerID:  sub.OwnerID,
			Title:    sub.Title,
			Category: sub.Category,
		})
		m = created
		return err
	})
	if err != nil {
		return types.Meeting{}, err
	}
	logger.WithMeeting(o.log, m.ID, m.OwnerID).WithField("title", m.Title).Info("meeting created")
	return m, nil
}

func submissionKey(sub Submission) string {
	if sub.SourceKey != "" {
		return sub.OwnerID + "|" + sub.SourceKey
	}
	return sub.OwnerID + "|" + sub.AudioPath
}

// Submit creates the meeting and processes it in the background. The returned
// meeting is the PENDING record; poll the store for progress.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (types.Meeting, error) {
	key := submissionKey(sub)
	claim := uuid.NewString()
	if !o.deps.InFlight.Acquire(key, claim) {
		return types.Meeting{}, ErrDuplicateSubmission
	}
	m, err := o.Create(ctx, sub)
	if err != nil {
		o.deps.InFlight.Release(key, claim)
		return types.Meeting{}, err
	}

	// the run outlives the request that submitted it
	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.deps.InFlight.Release(key, claim)
		o.sem <- struct{}{}
		defer func() { <-o.sem }()
		if _, err := o.run(runCtx, m, sub.AudioPath); err != nil {
			logger.WithMeeting(o.log, m.ID, m.OwnerID).WithError(err).Error("pipeline did not reach a terminal status")
		}
	}()
	return m, nil
}

// Process runs an already created PENDING meeting to a terminal status and
// returns the final record. A FAILED meeting is a normal outcome, not an
// error; the error is reserved for runs that could not record a terminal
// status. Cancelling ctx fails the meeting; the terminal write still lands.
func (o *Orchestrator) Process(ctx context.Context, meetingID, audioPath string) (types.Meeting, error) {
	m, err := o.deps.Store.GetMeeting(ctx, meetingID)
	if err != nil {
		return types.Meeting{}, err
	}
	if m.Status != types.StatusPending {
		return m, fmt.Errorf("%w: %s is %s", ErrNotPending, m.ID, m.Status)
	}
	o.sem <- struct{}{}
	defer func() { <-o.sem }()
	return o.run(ctx, m, audioPath)
}

// Wait blocks until every submitted run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, m types.Meeting, tempPath string) (types.Meeting, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		attribute.String("meeting.id", m.ID),
		attribute.String("meeting.category", m.Category),
	)
	defer span.End()

	log := logger.WithMeeting(o.log, m.ID, m.OwnerID)
	start := time.Now()
	processed := o.deps.Lifecycle.ProcessedPath(m.ID)

	if _, err := o.tracker.Advance(ctx, m.ID, types.StatusProcessingAudio, nil); err != nil {
		return o.fail(ctx, m, tempPath, err)
	}
	var ar audio.Result
	err := o.stage(ctx, log, types.StageAudio, func(ctx context.Context) error {
		var err error
		ar, err = o.deps.Audio.Normalize(ctx, tempPath, processed)
		return err
	})
	if err != nil {
		return o.fail(ctx, m, tempPath, err)
	}

	if _, err := o.tracker.Advance(ctx, m.ID, types.StatusTranscribing, &types.MeetingUpdate{
		AudioSizeBytes:       &ar.SizeBytes,
		AudioDurationSeconds: &ar.DurationSeconds,
	}); err != nil {
		return o.fail(ctx, m, tempPath, err)
	}
	var tr transcription.Result
	err = o.stage(ctx, log, types.StageTranscription, func(ctx context.Context) error {
		var err error
		tr, err = o.deps.Transcriber.Transcribe(ctx, ar.NormalizedPath)
		return err
	})
	if err != nil {
		return o.fail(ctx, m, tempPath, err)
	}

	upd := &types.MeetingUpdate{TranscriptText: &tr.Text, TranscriptConfidence: tr.Confidence}
	if tr.Language != "" {
		upd.TranscriptLanguage = &tr.Language
	}
	if _, err := o.tracker.Advance(ctx, m.ID, types.StatusProcessingNLP, upd); err != nil {
		return o.fail(ctx, m, tempPath, err)
	}
	var features *types.LinguisticFeatures
	err = o.stage(ctx, log, types.StageLinguistic, func(ctx context.Context) error {
		f, err := o.deps.Linguistic.Analyze(ctx, tr.Text)
		if err != nil {
			return err
		}
		features = &f
		return nil
	})
	if err != nil {
		// enrichment only; summarize from the transcript alone
		features = nil
	}

	if _, err := o.tracker.Advance(ctx, m.ID, types.StatusSummarizing, &types.MeetingUpdate{NLPFeatures: features}); err != nil {
		return o.fail(ctx, m, tempPath, err)
	}
	var summary *types.Summary
	err = o.stage(ctx, log, types.StageSummarization, func(ctx context.Context) error {
		var err error
		summary, err = o.deps.Summarizer.Summarize(ctx, summarizer.Request{
			Transcript:      tr.Text,
			Features:        features,
			Title:           m.Title,
			Category:        m.Category,
			DurationSeconds: ar.DurationSeconds,
		})
		return err
	})
	if err != nil {
		return o.fail(ctx, m, tempPath, err)
	}

	final, err := o.complete(ctx, m, tempPath, processed, summary)
	if err != nil {
		return final, err
	}
	span.SetAttributes(attribute.String("meeting.status", string(final.Status)))
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("meeting completed")
	return final, nil
}

// stage runs one adapter call inside its own span and turns the failure into
// a StageError for that stage. Linguistic failures are logged as warnings.
func (o *Orchestrator) stage(ctx context.Context, log *logrus.Entry, stage types.Stage, call func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+string(stage), attribute.String("stage", string(stage)))
	defer span.End()
	start := time.Now()

	err := call(ctx)
	entry := log.WithFields(logrus.Fields{"stage": stage, "duration_ms": time.Since(start).Milliseconds()})
	if err == nil {
		span.SetAttributes(attribute.String("outcome", "ok"))
		entry.Debug("stage finished")
		return nil
	}

	se := types.AsStageError(stage, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, se.Message)
	span.SetAttributes(attribute.String("outcome", "error"))
	if !stage.Fatal() {
		entry.WithField("cause", se.Detail()).Warn("stage failed, continuing without it")
		return se
	}
	entry.WithField("cause", se.Detail()).Error("stage failed")
	return se
}

func (o *Orchestrator) complete(ctx context.Context, m types.Meeting, tempPath, processed string, summary *types.Summary) (types.Meeting, error) {
	log := logger.WithMeeting(o.log, m.ID, m.OwnerID)

	loc, err := o.deps.Lifecycle.Promote(ctx, m.ID, processed)
	if err != nil {
		return o.fail(ctx, m, tempPath, types.NewStageError(types.StageStorage, "failed to store recording", err))
	}

	// the artifact is promoted; finish the bookkeeping even if ctx is cancelled
	ctx = context.WithoutCancel(ctx)
	final, err := o.tracker.Advance(ctx, m.ID, types.StatusCompleted, &types.MeetingUpdate{
		AudioPath: &loc,
		Summary:   summary,
	})
	if err != nil {
		// a retried write may have landed before its error came back
		if errors.Is(err, store.ErrMeetingFinalized) {
			if cur, gerr := o.deps.Store.GetMeeting(ctx, m.ID); gerr == nil && cur.Status == types.StatusCompleted {
				final, err = cur, nil
			}
		}
	}
	if err != nil {
		if derr := o.deps.Lifecycle.Demote(ctx, m.ID); derr != nil {
			log.WithError(derr).Error("failed to roll back promoted recording")
		}
		return o.fail(ctx, m, tempPath, err)
	}

	days := o.retentionDays(ctx, m.OwnerID)
	deadline, err := o.deps.Lifecycle.ScheduleRetention(ctx, m.ID, days)
	if err != nil {
		log.WithError(err).Warn("failed to schedule retention, recording kept")
	} else {
		final.RetentionDeadline = deadline
	}

	o.deps.Lifecycle.FinishCleanup(m.ID, tempPath)
	o.notifyCompleted(ctx, final)
	return final, nil
}

// retentionDays resolves the owner's window, falling back to the default when
// the owner never set one or the lookup fails.
func (o *Orchestrator) retentionDays(ctx context.Context, ownerID string) *int {
	days, ok, err := o.deps.Store.RetentionDays(ctx, ownerID)
	if err != nil {
		o.log.WithError(err).WithField("owner_id", ownerID).Warn("retention lookup failed, using default")
		return o.opts.DefaultRetentionDays
	}
	if !ok {
		return o.opts.DefaultRetentionDays
	}
	return days
}

// fail records the terminal FAILED status, removes intermediates and notifies
// the owner. The returned error is non-nil only when FAILED could not be
// written.
func (o *Orchestrator) fail(ctx context.Context, m types.Meeting, tempPath string, cause error) (types.Meeting, error) {
	log := logger.WithMeeting(o.log, m.ID, m.OwnerID)
	se := types.AsStageError(types.StageStorage, cause)

	// a cancelled caller must not leave the meeting in an intermediate status
	ctx = context.WithoutCancel(ctx)
	final, err := o.tracker.Fail(ctx, m.ID, se.Message)
	o.deps.Lifecycle.AbortCleanup(m.ID, tempPath)
	if err != nil {
		if errors.Is(err, store.ErrMeetingFinalized) {
			cur, gerr := o.deps.Store.GetMeeting(ctx, m.ID)
			if gerr == nil {
				return cur, nil
			}
		}
		log.WithError(err).WithField("cause", se.Detail()).Error("failed to record failure")
		return m, err
	}

	log.WithFields(logrus.Fields{"stage": se.Stage, "cause": se.Detail()}).Warn("meeting failed")
	o.notifyFailed(ctx, final)
	return final, nil
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, m types.Meeting) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.NotifyTimeout)
	defer cancel()
	if err := o.deps.Notifier.NotifyCompleted(nctx, m.OwnerID, m.ID, m.Title, notify.Preview(m.Summary)); err != nil {
		logger.WithMeeting(o.log, m.ID, m.OwnerID).WithError(err).Warn("completion notification failed")
	}
}

func (o *Orchestrator) notifyFailed(ctx context.Context, m types.Meeting) {
	msg := ""
	if m.ErrorMessage != nil {
		msg = *m.ErrorMessage
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.NotifyTimeout)
	defer cancel()
	if err := o.deps.Notifier.NotifyFailed(nctx, m.OwnerID, m.ID, m.Title, msg); err != nil {
		logger.WithMeeting(o.log, m.ID, m.OwnerID).WithError(err).Warn("failure notification failed")
	}
}

// Package pipeline runs the conversation pipeline: prompt delivery followed
// by a parallel fan-out of independent post-processing steps.
//
// Each step's outcome is checkpointed, so executing an instance again (after
// a crash, or on another worker) skips what already ran.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// MetadataInstanceID tags dispatch messages with the instance they carry.
const MetadataInstanceID = "instance_id"

// Input is the serialisable record a pipeline instance runs from.
type Input struct {
	Snapshot reqctx.Snapshot `json:"snapshot"`
	Prompt   string          `json:"prompt"`
}

// PromptFunc delivers the prompt. A false outcome ends the instance as
// aborted.
type PromptFunc func(ctx context.Context, in Input) (bool, error)

// PostFunc is one post-processing step.
type PostFunc func(ctx context.Context, in Input) error

type postStep struct {
	name    string
	enabled bool
	fn      PostFunc
}

// Engine executes pipeline instances against a CheckpointStore.
type Engine struct {
	store      CheckpointStore
	promptName string
	prompt     PromptFunc
	post       []postStep

	pub   message.Publisher
	sub   message.Subscriber
	topic string

	hooks hooks.Emitter
	log   *logging.Logger

	local sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatch sends instances over a watermill topic instead of running
// them on a local goroutine.
func WithDispatch(pub message.Publisher, sub message.Subscriber, topic string) Option {
	return func(e *Engine) {
		e.pub = pub
		e.sub = sub
		e.topic = topic
	}
}

// WithHooks emits pipeline_started and pipeline_completed.
func WithHooks(h hooks.Emitter) Option {
	return func(e *Engine) { e.hooks = h }
}

// NewEngine creates an engine with no steps.
func NewEngine(store CheckpointStore, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, log: log.Sub("pipeline")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PromptStep sets the prompt-delivery step.
func (e *Engine) PromptStep(name string, fn PromptFunc) {
	e.promptName = name
	e.prompt = fn
}

// PostStep adds a post-processing step. A disabled step is recorded as
// skipped and never runs.
func (e *Engine) PostStep(name string, enabled bool, fn PostFunc) {
	e.post = append(e.post, postStep{name: name, enabled: enabled, fn: fn})
}

// Steps lists the registered step names in order, prompt first.
func (e *Engine) Steps() []string {
	names := []string{e.promptName}
	for _, s := range e.post {
		names = append(names, s.name)
	}
	return names
}

// Start persists a new instance for in and dispatches it.
func (e *Engine) Start(ctx context.Context, in Input) (*Instance, error) {
	if e.prompt == nil {
		return nil, errors.New("pipeline has no prompt step")
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "encoding pipeline input")
	}
	now := time.Now().UTC()
	inst := &Instance{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Input:     raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateInstance(ctx, inst); err != nil {
		return nil, errors.Wrap(err, "creating pipeline instance")
	}

	e.emit(ctx, hooks.EventPipelineStarted, inst.ID, in, nil)
	if err := e.dispatch(ctx, inst.ID); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *Engine) dispatch(ctx context.Context, id string) error {
	if e.pub == nil {
		e.local.Add(1)
		go func() {
			defer e.local.Done()
			if err := e.Execute(context.WithoutCancel(ctx), id); err != nil {
				e.log.Error().Err(err).Str("instance", id).Msg("pipeline execution failed")
			}
		}()
		return nil
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(id))
	msg.Metadata.Set(MetadataInstanceID, id)
	if err := e.pub.Publish(e.topic, msg); err != nil {
		return errors.Wrapf(err, "dispatching pipeline instance %s", id)
	}
	return nil
}

// Run consumes dispatched instances until ctx is cancelled. Instances are
// acked once executed; execution errors are recorded on the instance.
func (e *Engine) Run(ctx context.Context) error {
	if e.sub == nil {
		return errors.New("pipeline has no dispatch subscriber")
	}
	ch, err := e.sub.Subscribe(ctx, e.topic)
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", e.topic)
	}
	e.log.Info().Str("topic", e.topic).Msg("pipeline worker started")
	for msg := range ch {
		id := msg.Metadata.Get(MetadataInstanceID)
		if id == "" {
			id = string(msg.Payload)
		}
		if err := e.Execute(ctx, id); err != nil {
			e.log.Error().Err(err).Str("instance", id).Msg("pipeline execution failed")
		}
		msg.Ack()
	}
	e.log.Info().Str("topic", e.topic).Msg("pipeline worker stopped")
	return nil
}

// Wait blocks until locally dispatched instances have finished.
func (e *Engine) Wait() {
	e.local.Wait()
}

// Resume re-dispatches every instance that has not reached a terminal
// state and returns how many were dispatched.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	active, err := e.store.ListInstances(ctx, true)
	if err != nil {
		return 0, errors.Wrap(err, "listing active pipeline instances")
	}
	for i, inst := range active {
		if err := e.dispatch(ctx, inst.ID); err != nil {
			return i, err
		}
	}
	if len(active) > 0 {
		e.log.Info().Int("instances", len(active)).Msg("resumed pipeline instances")
	}
	return len(active), nil
}

// Status returns an instance and its checkpointed steps.
func (e *Engine) Status(ctx context.Context, id string) (*Instance, []StepRecord, error) {
	inst, err := e.store.GetInstance(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	steps, err := e.store.Steps(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return inst, steps, nil
}

// Execute runs instance id from wherever its checkpoints left off. A
// terminal instance is left alone.
func (e *Engine) Execute(ctx context.Context, id string) error {
	if e.prompt == nil {
		return errors.New("pipeline has no prompt step")
	}
	inst, err := e.store.GetInstance(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "loading pipeline instance %s", id)
	}
	if inst.Status.Terminal() {
		return nil
	}
	var in Input
	if err := json.Unmarshal(inst.Input, &in); err != nil {
		return e.finish(ctx, id, in, StatusFailed, errors.Wrap(err, "decoding pipeline input"))
	}

	recs, err := e.store.Steps(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "loading steps for %s", id)
	}
	done := make(map[string]StepRecord, len(recs))
	for _, r := range recs {
		done[r.Name] = r
	}
	log := e.log.With("instance", id)

	// prompt delivery
	if err := e.store.UpdateStatus(ctx, id, StatusPromptDelivery, ""); err != nil {
		return err
	}
	rec, replayed := done[e.promptName]
	if !replayed {
		rec = e.runPrompt(ctx, id, in)
		if err := e.store.SaveStep(ctx, rec); err != nil {
			return errors.Wrapf(err, "checkpointing %s", e.promptName)
		}
	} else {
		log.Debug().Str("step", e.promptName).Msg("replaying checkpointed step")
	}
	if rec.Status == StepFailed {
		return e.finish(ctx, id, in, StatusFailed, errors.Errorf("step %s: %s", rec.Name, rec.Error))
	}
	if !rec.Outcome {
		return e.finish(ctx, id, in, StatusAborted, nil)
	}

	// post-processing
	if err := e.store.UpdateStatus(ctx, id, StatusPostProcessing, ""); err != nil {
		return err
	}
	var g errgroup.Group
	for _, step := range e.post {
		if _, ok := done[step.name]; ok {
			log.Debug().Str("step", step.name).Msg("replaying checkpointed step")
			continue
		}
		if !step.enabled {
			e.save(ctx, StepRecord{InstanceID: id, Name: step.name, Status: StepSkipped, CompletedAt: time.Now().UTC()})
			continue
		}
		g.Go(func() error {
			e.save(ctx, e.runPost(ctx, id, step, in))
			return nil
		})
	}
	_ = g.Wait()

	return e.finish(ctx, id, in, StatusComplete, nil)
}

func (e *Engine) runPrompt(ctx context.Context, id string, in Input) (rec StepRecord) {
	rec = StepRecord{InstanceID: id, Name: e.promptName}
	defer func() {
		if r := recover(); r != nil {
			rec.Status = StepFailed
			rec.Outcome = false
			rec.Error = fmt.Sprintf("panic: %v", r)
		}
		rec.CompletedAt = time.Now().UTC()
	}()

	ok, err := e.prompt(ctx, in)
	if err != nil {
		rec.Status = StepFailed
		rec.Error = err.Error()
		return rec
	}
	rec.Status = StepDone
	rec.Outcome = ok
	return rec
}

// runPost runs one branch of the fan-out. Its failure is recorded on its
// own checkpoint and never reaches the other branches.
func (e *Engine) runPost(ctx context.Context, id string, step postStep, in Input) (rec StepRecord) {
	rec = StepRecord{InstanceID: id, Name: step.name, Status: StepDone, Outcome: true}
	defer func() {
		if r := recover(); r != nil {
			rec.Status = StepFailed
			rec.Outcome = false
			rec.Error = fmt.Sprintf("panic: %v", r)
		}
		if rec.Status == StepFailed {
			e.log.Warn().Str("instance", id).Str("step", step.name).Str("error", rec.Error).Msg("post-processing step failed")
		}
		rec.CompletedAt = time.Now().UTC()
	}()

	if err := step.fn(ctx, in); err != nil {
		rec.Status = StepFailed
		rec.Outcome = false
		rec.Error = err.Error()
	}
	return rec
}

func (e *Engine) save(ctx context.Context, rec StepRecord) {
	if err := e.store.SaveStep(ctx, rec); err != nil {
		e.log.Error().Err(err).Str("instance", rec.InstanceID).Str("step", rec.Name).Msg("checkpointing step")
	}
}

func (e *Engine) finish(ctx context.Context, id string, in Input, status Status, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := e.store.UpdateStatus(ctx, id, status, msg); err != nil {
		return errors.Wrapf(err, "finishing pipeline instance %s", id)
	}
	e.log.Info().Str("instance", id).Str("status", string(status)).Msg("pipeline finished")
	e.emit(ctx, hooks.EventPipelineCompleted, id, in, map[string]any{"status": string(status)})
	return cause
}

func (e *Engine) emit(ctx context.Context, event, id string, in Input, data map[string]any) {
	if e.hooks == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["instance_id"] = id
	data["thread_id"] = in.Snapshot.ThreadID
	e.hooks.Emit(ctx, event, data)
}

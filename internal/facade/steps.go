package facade

import (
	"context"

	"github.com/pkg/errors"

	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// Pipeline step names.
const (
	StepPromptDelivery = "prompt-delivery"
	StepSuggestions    = "suggestions"
	StepSentiment      = "sentiment"
)

// Steps binds facade operations to pipeline steps. Every step rebuilds its
// session from the instance snapshot, so it can run on any worker.
type Steps struct {
	Deps    Deps
	Session reqctx.Deps
}

func (s Steps) facade(ctx context.Context, in pipeline.Input) (*Facade, error) {
	rc, err := reqctx.FromSnapshot(ctx, in.Snapshot, s.Session)
	if err != nil {
		return nil, errors.Wrap(err, "restoring request context")
	}
	return New(ctx, rc, s.Deps), nil
}

// Prompt delivers the prompt through ProcessUserActivity.
func (s Steps) Prompt(ctx context.Context, in pipeline.Input) (bool, error) {
	f, err := s.facade(ctx, in)
	if err != nil {
		return false, err
	}
	return f.ProcessUserActivity(ctx, in.Prompt), nil
}

// Suggestions pushes quick replies for the conversation.
func (s Steps) Suggestions(ctx context.Context, in pipeline.Input) error {
	f, err := s.facade(ctx, in)
	if err != nil {
		return err
	}
	f.SendSuggestions(ctx)
	return nil
}

// Sentiment classifies the prompt.
func (s Steps) Sentiment(ctx context.Context, in pipeline.Input) error {
	f, err := s.facade(ctx, in)
	if err != nil {
		return err
	}
	f.SendSentiment(ctx, in.Prompt)
	return nil
}

// Register installs the conversation pipeline on e.
func (s Steps) Register(e *pipeline.Engine, cfg config.PipelineConfig) {
	e.PromptStep(StepPromptDelivery, s.Prompt)
	e.PostStep(StepSuggestions, cfg.SuggestionsEnabled(), s.Suggestions)
	e.PostStep(StepSentiment, cfg.Sentiment, s.Sentiment)
}

package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/classify"
	"github.com/sells-group/leadflow/internal/email"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/store"
)

// Result reports how a single submission's pipeline run ended. Err is
// observability only: processing errors are recorded in the store, never
// re-raised to the caller that scheduled the run.
type Result struct {
	SubmissionID string
	State        model.PipelineState
	EmailState   model.PipelineState
	Lead         *model.Lead
	Err          error
}

// advance moves the run to the next state. The transition table is the
// contract observers rely on, so a jump outside it is logged loudly.
func (r *Result) advance(to model.PipelineState) {
	if !model.CanTransition(r.State, to) {
		zap.L().Error("pipeline state transition outside the table",
			zap.String("submission_id", r.SubmissionID),
			zap.String("from", string(r.State)),
			zap.String("to", string(to)),
		)
	}
	r.State = to
}

// Processor runs the classification and engagement pipeline for one
// submission at a time. Concurrent runs for the same submission are safe:
// the lead uniqueness constraint is the deduplication mechanism.
type Processor struct {
	store      store.Store
	engine     *classify.Engine
	composer   *email.Composer
	dispatcher *email.Dispatcher
}

// NewProcessor wires a Processor from its collaborators.
func NewProcessor(st store.Store, engine *classify.Engine, composer *email.Composer, dispatcher *email.Dispatcher) *Processor {
	return &Processor{
		store:      st,
		engine:     engine,
		composer:   composer,
		dispatcher: dispatcher,
	}
}

// Process runs the pipeline for a submission. It never panics and never
// returns an error: pre-lead failures are recorded on the submission,
// post-lead email failures on the lead, and the returned Result carries
// the terminal state for observers.
func (p *Processor) Process(ctx context.Context, submissionID string) (result Result) {
	result = Result{SubmissionID: submissionID, State: model.StateReceived}
	log := zap.L().With(zap.String("submission_id", submissionID))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			log.Error("pipeline panicked", zap.Any("panic", r))
			p.recordFailure(ctx, submissionID, err)
			result.State = model.StateFailed
			result.Err = err
		}
	}()

	// Classifying covers loading the submission's context as well as
	// the oracle call itself.
	result.advance(model.StateClassifying)

	sub, err := p.store.GetSubmission(ctx, submissionID)
	if err != nil {
		log.Warn("submission lookup failed", zap.Error(err))
		result.advance(model.StateFailed)
		result.Err = err
		return result
	}

	form, err := p.store.GetForm(ctx, sub.FormID)
	if err != nil {
		p.recordFailure(ctx, submissionID, err)
		result.advance(model.StateFailed)
		result.Err = err
		return result
	}

	owner, err := p.store.GetOwner(ctx, form.OwnerID)
	if err != nil {
		p.recordFailure(ctx, submissionID, err)
		result.advance(model.StateFailed)
		result.Err = err
		return result
	}

	classification, err := p.engine.Classify(ctx, sub, form, owner)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		p.recordFailure(ctx, submissionID, err)
		result.advance(model.StateFailed)
		result.Err = err
		return result
	}
	result.advance(model.StateClassified)

	lead := &model.Lead{
		CustomerID:     sub.ID,
		OwnerID:        owner.ID,
		FormID:         form.ID,
		Classification: classification.Classification,
		Confidence:     classification.Confidence,
		Reasoning:      classification.Reasoning,
		Insights:       classification.Insights,
		KeyFactors:     classification.KeyFactors,
	}
	if err := p.store.CreateLead(ctx, lead); err != nil {
		if resilience.IsConflict(err) {
			// A concurrent run won the insert. Its pipeline owns the
			// email and the processed flag; nothing left to do here.
			log.Debug("lead already exists, skipping duplicate run")
			result.advance(model.StateCompleted)
			return result
		}
		p.recordFailure(ctx, submissionID, err)
		result.advance(model.StateFailed)
		result.Err = err
		return result
	}
	result.Lead = lead
	log.Info("lead created",
		zap.String("lead_id", lead.ID),
		zap.String("classification", string(lead.Classification)),
		zap.Float64("confidence", lead.Confidence),
	)

	p.sendFollowUp(ctx, &result, lead, sub, form, owner, classification, log)

	if err := p.store.MarkSubmissionProcessed(ctx, submissionID); err != nil {
		log.Warn("failed to mark submission processed", zap.Error(err))
		result.Err = err
	}
	result.advance(model.StateCompleted)
	return result
}

// sendFollowUp composes and delivers the follow-up email, recording the
// outcome on the lead and the email-phase states on the result. Failures
// here never abort the pipeline.
func (p *Processor) sendFollowUp(ctx context.Context, result *Result, lead *model.Lead, sub *model.Submission, form *model.FormConfig, owner *model.OwnerProfile, classification *model.ClassificationResult, log *zap.Logger) {
	if !email.ShouldSend(sub, form) {
		log.Debug("follow-up email skipped",
			zap.Bool("auto_response", form.Email.AutoResponse),
			zap.Bool("has_email", sub.Email != ""),
		)
		result.advance(model.StateEmailSkipped)
		result.EmailState = model.StateEmailSkipped
		return
	}

	result.advance(model.StateEmailSending)

	content, err := p.composer.Compose(ctx, classification, sub, form, owner)
	if err != nil {
		log.Warn("email composition failed", zap.Error(err))
		p.recordEmailOutcome(ctx, lead, store.EmailUpdate{Error: err.Error()})
		result.advance(model.StateEmailFailed)
		result.EmailState = model.StateEmailFailed
		return
	}

	outcome := p.dispatcher.Send(ctx, sub.Email, content)
	update := store.EmailUpdate{
		Sent:    outcome.Success,
		SentAt:  outcome.SentAt,
		Subject: content.Subject,
		Body:    content.Body,
		Error:   outcome.Error,
	}
	p.recordEmailOutcome(ctx, lead, update)

	if !outcome.Success {
		result.advance(model.StateEmailFailed)
		result.EmailState = model.StateEmailFailed
		return
	}
	result.advance(model.StateEmailSent)
	result.EmailState = model.StateEmailSent
}

func (p *Processor) recordEmailOutcome(ctx context.Context, lead *model.Lead, update store.EmailUpdate) {
	lead.EmailSent = update.Sent
	lead.EmailSentAt = update.SentAt
	lead.EmailSubject = update.Subject
	lead.EmailBody = update.Body
	lead.EmailError = update.Error

	if err := p.store.UpdateLeadEmail(ctx, lead.ID, update); err != nil {
		zap.L().Warn("failed to record email outcome",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
	}
}

func (p *Processor) recordFailure(ctx context.Context, submissionID string, cause error) {
	if err := p.store.SetSubmissionError(ctx, submissionID, cause.Error()); err != nil {
		zap.L().Warn("failed to record processing error",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
}

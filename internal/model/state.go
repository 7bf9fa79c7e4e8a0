package model

// PipelineState names a stage in a single submission's processing run.
// States are reported through the worker queue's completion events for
// observability; they are not persisted.
type PipelineState string

const (
	StateReceived     PipelineState = "received"
	StateClassifying  PipelineState = "classifying"
	StateClassified   PipelineState = "classified"
	StateEmailSkipped PipelineState = "email_skipped"
	StateEmailSending PipelineState = "email_sending"
	StateEmailSent    PipelineState = "email_sent"
	StateEmailFailed  PipelineState = "email_failed"
	StateCompleted    PipelineState = "completed"
	StateFailed       PipelineState = "failed"
)

// pipelineTransitions encodes the legal state machine:
// Received → Classifying → Classified → {EmailSkipped | EmailSending →
// EmailSent|EmailFailed} → Completed. Failed is reachable only before a
// Lead exists: from Classifying (lookups and the oracle call) or from
// Classified (the lead insert itself). A run that loses the lead-insert
// race completes directly from Classified.
var pipelineTransitions = map[PipelineState][]PipelineState{
	StateReceived:     {StateClassifying},
	StateClassifying:  {StateClassified, StateFailed},
	StateClassified:   {StateEmailSkipped, StateEmailSending, StateCompleted, StateFailed},
	StateEmailSkipped: {StateCompleted},
	StateEmailSending: {StateEmailSent, StateEmailFailed},
	StateEmailSent:    {StateCompleted},
	StateEmailFailed:  {StateCompleted},
}

// CanTransition reports whether moving from one pipeline state to
// another is legal.
func CanTransition(from, to PipelineState) bool {
	for _, next := range pipelineTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

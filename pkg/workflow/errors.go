package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StageError tags a failure with the stage that was executing.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Cause() error {
	return e.Err
}

// stageError tags err with stage. Cancellation is not attributed to the
// stage that happened to be running.
func stageError(stage Stage, err error) error {
	if errors.Is(err, context.Canceled) {
		stage = StageGeneral
	}
	return &StageError{Stage: stage, Err: err}
}

// ValidationError is returned before any stage runs.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

const (
	ExitSuccess          = 0
	ExitValidation       = 1
	ExitResearchError    = 2
	ExitCritiqueError    = 3
	ExitFinalReportError = 4
	ExitGeneralError     = 5
)

// FailedStage returns the failure tag of err, StageGeneral for errors not
// raised by a stage.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageGeneral
}

// ExitCodeFor classifies the result of an invocation into a process exit
// code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ExitValidation
	}
	switch FailedStage(err) {
	case StageResearch:
		return ExitResearchError
	case StageCritique:
		return ExitCritiqueError
	case StageFinalReport:
		return ExitFinalReportError
	default:
		return ExitGeneralError
	}
}

// IsStreamFailure reports whether err looks like a broken streaming
// connection.
func IsStreamFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "stream") || strings.Contains(msg, "connection")
}

// Describe renders err the way it is reported to the user.
func Describe(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Workflow interrupted by user"
	}
	if IsStreamFailure(err) {
		return "Streaming connection failed: " + err.Error()
	}
	return "Workflow execution failed: " + err.Error()
}

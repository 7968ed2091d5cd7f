package composer

import "errors"

var (
	ErrThreadNotFound    = errors.New("thread not found")
	ErrFileNotFound      = errors.New("file not found in thread")
	ErrNoProposedCode    = errors.New("file has no proposed code")
	ErrDecisionConflict  = errors.New("file already has the opposite decision")
	ErrRecoveryExhausted = errors.New("code generation kept failing after re-planning")
	ErrEmptyGeneration   = errors.New("model returned no code for file")
	ErrMislabeledRecord  = errors.New("model returned code for a different file")
	ErrNoFilesGenerated  = errors.New("no file changes were generated")
	ErrCancelled         = errors.New("composer run cancelled")
	ErrRunInProgress     = errors.New("a composer run is already active for this thread")
)

// User facing messages for generation failures.
const (
	msgFileFailed  = "I was unable to generate code for the following file: %s, please try again."
	msgNoChanges   = "I've failed to generate any code changes for this session, if this continues please clear the chat and try again."
	msgReplanLimit = "I was not able to produce working changes after several attempts. Please rephrase the request or clear the chat and try again."
)

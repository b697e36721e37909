package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fault taxonomy. ConfigFault is recovered locally by re-prompting and is
// never sent upstream; AI-side faults (auth/service/no-content) are
// captured and persisted as model-role transcript messages; StorageFault
// (store.go) aborts the in-flight operation.
var (
	ErrConfigFault  = errors.New("invalid or unknown classroom code")
	ErrAuthFault    = errors.New("missing or rejected credential")
	ErrServiceFault = errors.New("upstream service failure")
	ErrNoContent    = errors.New("service returned no image payload")
)

// IsAIFault reports whether err comes from the AI collaborator and should
// therefore be recorded in the session transcript rather than propagated.
func IsAIFault(err error) bool {
	return errors.Is(err, ErrAuthFault) ||
		errors.Is(err, ErrServiceFault) ||
		errors.Is(err, ErrNoContent)
}

// FaultMessage converts an AI fault into a model-role message so the
// transcript is self-describing: the failure is persisted and displayed
// exactly like any other reply.
func FaultMessage(err error) Message {
	text := "Something went wrong. Please try again."
	switch {
	case errors.Is(err, ErrAuthFault):
		text = "No valid API key is configured for this classroom. Ask your teacher to set one in classroom settings."
	case errors.Is(err, ErrNoContent):
		text = "The image service returned no image. Try a different prompt."
	case err != nil:
		text = fmt.Sprintf("The assistant is unavailable right now: %v", err)
	}
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleModel,
		Text:      text,
		Timestamp: time.Now(),
	}
}

package agent

import (
	"errors"
	"fmt"
	"strings"

	"reasoner/pkg/llm"
)

// ErrContractViolation is matched by every ContractViolationError.
var ErrContractViolation = errors.New("model client contract violation")

// ContractViolationError reports a completion whose content is not plain text.
type ContractViolationError struct {
	Reason        string
	FunctionCalls []llm.ToolCall
}

func (e *ContractViolationError) Error() string {
	if len(e.FunctionCalls) == 0 {
		return fmt.Sprintf("%v: %s", ErrContractViolation, e.Reason)
	}
	names := make([]string, 0, len(e.FunctionCalls))
	for _, fc := range e.FunctionCalls {
		names = append(names, fc.Name)
	}
	return fmt.Sprintf("%v: %s (calls: %s)", ErrContractViolation, e.Reason, strings.Join(names, ", "))
}

// Is lets errors.Is(err, ErrContractViolation) succeed.
func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

package enums

import (
	"fmt"
	"strings"
)

// ConsumeAction identifies a billable feature.
type ConsumeAction string

const (
	ConsumeActionScriptGeneration ConsumeAction = "script_generation"
	ConsumeActionScriptAdjustment ConsumeAction = "script_adjustment"
	ConsumeActionChatMessages     ConsumeAction = "chat_messages"
)

var validConsumeActions = []ConsumeAction{
	ConsumeActionScriptGeneration,
	ConsumeActionScriptAdjustment,
	ConsumeActionChatMessages,
}

// String implements fmt.Stringer.
func (a ConsumeAction) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a ConsumeAction) IsValid() bool {
	for _, candidate := range validConsumeActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseConsumeAction converts raw input into a ConsumeAction.
func ParseConsumeAction(value string) (ConsumeAction, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validConsumeActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consume action %q", value)
}

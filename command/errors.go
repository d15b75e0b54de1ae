package command

import "github.com/goliatone/go-paykit/core"

func commandDependencyError(message string) error {
	return core.NewConfiguration(message, core.WithMethod("command"))
}

func commandValidationError(field string, message string) error {
	return core.NewValidation(
		"command: validation failed: "+field+" "+message,
		core.WithMethod("command"),
		core.WithContext(map[string]any{"fields": []string{field}}),
	)
}

func commandInvalidInputError(message string) error {
	return core.NewValidation(message, core.WithMethod("command"))
}

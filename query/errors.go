package query

import "github.com/goliatone/go-paykit/core"

func queryDependencyError(message string) error {
	return core.NewConfiguration(message, core.WithMethod("query"))
}

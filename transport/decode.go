package transport

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-paykit/core"
)

// JSON decodes a successful response body into T. Failed results pass through.
func JSON[T any](res core.Result[Response]) core.Result[T] {
	return core.Map(res, func(response Response) (T, error) {
		var out T
		if err := json.Unmarshal(response.Body, &out); err != nil {
			return out, core.NewInvalidType(
				fmt.Sprintf("%T", out),
				response.Body,
				core.WithCause(err),
				core.WithMethod("transport.json"),
				core.WithContext(map[string]any{"status_code": response.StatusCode}),
			)
		}
		return out, nil
	})
}

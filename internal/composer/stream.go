package composer

import (
	"context"
	"errors"
	"io"
	"strings"

	"wingman/internal/provider"
)

// consume reads a model stream to the end, passing each text increment to
// onText. The context is checked between chunks, and onText may return true
// to stop early.
func consume(ctx context.Context, stream provider.Stream, onText func(string) bool) (string, []provider.ToolCall, error) {
	defer stream.Close()

	var (
		text  strings.Builder
		calls []provider.ToolCall
	)
	for {
		if err := ctx.Err(); err != nil {
			return text.String(), nil, err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), calls, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return text.String(), nil, ctx.Err()
			}
			return text.String(), nil, err
		}

		calls = append(calls, chunk.ToolCalls...)
		if chunk.Text == "" {
			continue
		}
		text.WriteString(chunk.Text)
		if onText != nil && onText(chunk.Text) {
			return text.String(), calls, nil
		}
	}
}

package live

import "context"

// Frame is the serialisable state of a query pushed to streaming clients.
type Frame struct {
	Data    any    `json:"data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Source is the type-erased view of a Query used by streaming consumers.
type Source interface {
	Frame() Frame
	Changes(ctx context.Context) <-chan struct{}
}

// Frame returns the current state in serialisable form.
func (q *Query[T]) Frame() Frame {
	state := q.Snapshot()
	frame := Frame{Data: state.Data, Loading: state.Loading}
	if len(state.Data) == 0 {
		frame.Data = []T{}
	}
	if state.Err != nil {
		frame.Error = state.Err.Error()
	}
	return frame
}

var _ Source = (*Query[struct{}])(nil)

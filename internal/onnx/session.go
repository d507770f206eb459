package onnx

import (
	"sync"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Session wraps a loaded model.
type Session struct {
	mu          sync.Mutex
	name        string
	path        string
	inputNames  []string
	outputNames []string
	impl        sessionImpl
	closed      bool
}

// sessionImpl runs inference for one model.
type sessionImpl interface {
	run(inputs map[string]*Tensor) (map[string]*Tensor, error)
	close() error
}

// TensorType represents ONNX tensor element types.
type TensorType int

const (
	TensorTypeFloat32 TensorType = iota
	TensorTypeInt64
)

// Run executes the session. Only the inputs the model declares are fed.
func (s *Session) Run(inputs map[string]*Tensor) (map[string]*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New(errors.CodeMLError, "session is closed")
	}

	feed := inputs
	if len(s.inputNames) > 0 {
		feed = make(map[string]*Tensor, len(s.inputNames))
		for _, name := range s.inputNames {
			t, ok := inputs[name]
			if !ok {
				return nil, errors.ValidationError("missing input: " + name).WithDetail("model", s.name)
			}
			feed[name] = t
		}
	}

	outputs, err := s.impl.run(feed)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMLError, "inference failed for "+s.name, err).WithDetail("path", s.path)
	}
	return outputs, nil
}

// Output runs the session and returns the named output, or the first
// declared output when the name is absent.
func (s *Session) Output(inputs map[string]*Tensor, name string) (*Tensor, error) {
	outputs, err := s.Run(inputs)
	if err != nil {
		return nil, err
	}
	if t, ok := outputs[name]; ok {
		return t, nil
	}
	for _, declared := range s.outputNames {
		if t, ok := outputs[declared]; ok {
			return t, nil
		}
	}
	return nil, errors.New(errors.CodeMLError, "missing output: "+name).WithDetail("model", s.name)
}

// InputNames returns the declared input names.
func (s *Session) InputNames() []string {
	return s.inputNames
}

// OutputNames returns the declared output names.
func (s *Session) OutputNames() []string {
	return s.outputNames
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Close closes the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.impl != nil {
		if err := s.impl.close(); err != nil {
			return errors.Wrap(errors.CodeMLError, "failed to destroy session", err)
		}
	}
	return nil
}

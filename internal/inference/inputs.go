package inference

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// DefaultLabel is used when a requested input does not exist.
const DefaultLabel = "class0"

// InputSet holds named, pre-quantized input tensors.
type InputSet struct {
	mu     sync.RWMutex
	size   int
	inputs map[string][]byte
}

// NewInputSet returns an empty set of tensors of size bytes each.
func NewInputSet(size int) *InputSet {
	return &InputSet{size: size, inputs: make(map[string][]byte)}
}

// LoadInputs reads every <label>.bin file in dir. A missing directory gives
// an empty set.
func LoadInputs(fs afero.Fs, dir string, size int) (*InputSet, error) {
	set := NewInputSet(size)

	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		infLog.Warnf("Input directory %s not found, no test inputs loaded", dir)
		return set, nil
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs in %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".bin" {
			continue
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", e.Name(), err)
		}
		if err := set.Put(strings.TrimSuffix(e.Name(), ".bin"), data); err != nil {
			return nil, err
		}
	}
	infLog.Infof("Loaded %d test inputs from %s", set.Len(), dir)
	return set, nil
}

// Put stores data under label, replacing any previous tensor.
func (s *InputSet) Put(label string, data []byte) error {
	if len(data) != s.size {
		return fmt.Errorf("input %q is %d bytes, model expects %d", label, len(data), s.size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[label] = slices.Clone(data)
	return nil
}

// Delete removes label and reports whether it was present.
func (s *InputSet) Delete(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inputs[label]
	delete(s.inputs, label)
	return ok
}

// Get returns the tensor stored under label.
func (s *InputSet) Get(label string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.inputs[label]
	return data, ok
}

// Resolve returns the tensor for label, falling back to DefaultLabel. The
// returned label names the tensor actually used.
func (s *InputSet) Resolve(label string) (string, []byte, bool) {
	if data, ok := s.Get(label); ok {
		return label, data, true
	}
	data, ok := s.Get(DefaultLabel)
	return DefaultLabel, data, ok
}

// Labels returns the stored labels in order.
func (s *InputSet) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	labels := make([]string, 0, len(s.inputs))
	for l := range s.inputs {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

func (s *InputSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inputs)
}

// Size returns the tensor size in bytes.
func (s *InputSet) Size() int { return s.size }

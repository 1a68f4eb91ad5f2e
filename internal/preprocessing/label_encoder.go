package preprocessing

import (
	"encoding/gob"
	"fmt"
	"os"
)

// LabelEncoder maps string class names to consecutive ints in the order
// they are first seen, so that the same file always yields the same ids.
type LabelEncoder struct {
	Names      []string
	ClassToInt map[string]int
	IsFitted   bool
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{
		ClassToInt: make(map[string]int),
	}
}

func (le *LabelEncoder) Fit(labels []string) {
	le.Names = nil
	le.ClassToInt = make(map[string]int)
	for _, label := range labels {
		le.add(label)
	}
	le.IsFitted = true
}

func (le *LabelEncoder) add(label string) int {
	if id, ok := le.ClassToInt[label]; ok {
		return id
	}
	id := len(le.Names)
	le.Names = append(le.Names, label)
	le.ClassToInt[label] = id
	return id
}

func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("label encoder must be fitted before transform")
	}

	result := make([]int, len(labels))
	for i, label := range labels {
		id, ok := le.ClassToInt[label]
		if !ok {
			return nil, fmt.Errorf("unknown label: %q", label)
		}
		result[i] = id
	}
	return result, nil
}

func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	le.Fit(labels)
	return le.Transform(labels)
}

func (le *LabelEncoder) InverseTransform(encoded []int) ([]string, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("label encoder must be fitted before inverse transform")
	}

	result := make([]string, len(encoded))
	for i, id := range encoded {
		if id < 0 || id >= len(le.Names) {
			return nil, fmt.Errorf("unknown encoding: %d", id)
		}
		result[i] = le.Names[id]
	}
	return result, nil
}

// Name returns the class name of id, or the id itself when unknown.
func (le *LabelEncoder) Name(id int) string {
	if le == nil || id < 0 || id >= len(le.Names) {
		return fmt.Sprint(id)
	}
	return le.Names[id]
}

func (le *LabelEncoder) NumClasses() int {
	return len(le.Names)
}

func (le *LabelEncoder) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(le)
}

func (le *LabelEncoder) Load(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(le); err != nil {
		return fmt.Errorf("failed to decode label encoder: %w", err)
	}
	return nil
}

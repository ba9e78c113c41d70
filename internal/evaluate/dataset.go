package evaluate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDataset is returned when a dataset has no usable examples.
var ErrEmptyDataset = errors.New("dataset has no examples")

// Example is one question with its reference answer.
type Example struct {
	ID       string `yaml:"id" json:"id"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Dataset is a named list of examples.
type Dataset struct {
	Name     string    `yaml:"name" json:"name"`
	Examples []Example `yaml:"examples" json:"examples"`
}

// LoadDataset reads a YAML dataset from path.
func LoadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(raw)
}

// ParseDataset decodes YAML. Examples without a question or answer are
// rejected; missing ids are numbered from 1.
func ParseDataset(raw []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parse dataset: %w", err)
	}
	if len(ds.Examples) == 0 {
		return Dataset{}, ErrEmptyDataset
	}
	for i := range ds.Examples {
		ex := &ds.Examples[i]
		ex.Question = strings.TrimSpace(ex.Question)
		ex.Answer = strings.TrimSpace(ex.Answer)
		if ex.Question == "" || ex.Answer == "" {
			return Dataset{}, fmt.Errorf("example %d: question and answer are required", i+1)
		}
		if strings.TrimSpace(ex.ID) == "" {
			ex.ID = fmt.Sprintf("%d", i+1)
		}
	}
	return ds, nil
}

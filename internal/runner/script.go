package runner

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// LoadScript reads a script file mapping task descriptions to steps:
//
//	Fetch data:
//	  fail_times: 1
//	  error: upstream offline
//	  delay: 200ms
//	Publish post:
//	  fail_times: -1
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a script document.
func ParseScript(data []byte) (*Scripted, error) {
	var steps map[string]Step
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return NewScripted(steps), nil
}

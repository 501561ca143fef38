package core

import (
	"fmt"

	"github.com/mitchellh/copystructure"
)

// ClonePayload returns a deep copy of params so a fold never writes into the
// caller's value.
func ClonePayload(params Params) (Params, error) {
	if params == nil {
		return Params{}, nil
	}
	copied, err := copystructure.Copy(params)
	if err != nil {
		return nil, fmt.Errorf("core: clone payload: %w", err)
	}
	cloned, ok := copied.(Params)
	if !ok {
		return nil, fmt.Errorf("core: clone payload: unexpected type %T", copied)
	}
	return cloned, nil
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

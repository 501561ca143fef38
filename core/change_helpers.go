package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// The helpers below build ChangeFuncs for the usual payload rewrites. They
// edit the payload in place; the transformer always hands them its own copy.
// Paths use dots to address nested objects ("timing.timeUnit").

func Identity() ChangeFunc {
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		return params, nil
	}
}

func Compose(fns ...ChangeFunc) ChangeFunc {
	return func(ctx context.Context, params Params, cc ChangeContext) (Params, error) {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			next, err := fn(ctx, params, cc)
			if err != nil {
				return nil, err
			}
			params = next
		}
		return params, nil
	}
}

// RenameField renames a top level key. RenameField(b, a) is its inverse.
func RenameField(from string, to string) ChangeFunc {
	return MoveField(from, to)
}

// MoveField moves the value at fromPath to toPath, creating intermediate
// objects. Objects left empty by the move are removed, so that
// MoveField(b, a) undoes MoveField(a, b).
func MoveField(fromPath string, toPath string) ChangeFunc {
	from := splitPath(fromPath)
	to := splitPath(toPath)
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		if params == nil || len(from) == 0 || len(to) == 0 {
			return params, nil
		}
		value, ok := lookupPath(params, from)
		if !ok {
			return params, nil
		}
		removePath(params, from)
		if err := setPath(params, to, value); err != nil {
			return nil, err
		}
		return params, nil
	}
}

func SetDefault(path string, value any) ChangeFunc {
	segments := splitPath(path)
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		if params == nil || len(segments) == 0 {
			return params, nil
		}
		if _, ok := lookupPath(params, segments); ok {
			return params, nil
		}
		if err := setPath(params, segments, value); err != nil {
			return nil, err
		}
		return params, nil
	}
}

// DropField removes a value. Used for lossy changes.
func DropField(path string) ChangeFunc {
	segments := splitPath(path)
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		if params == nil || len(segments) == 0 {
			return params, nil
		}
		removePath(params, segments)
		return params, nil
	}
}

// TransformField rewrites the value at path when present.
func TransformField(path string, fn func(value any) (any, error)) ChangeFunc {
	segments := splitPath(path)
	return func(_ context.Context, params Params, _ ChangeContext) (Params, error) {
		if params == nil || len(segments) == 0 || fn == nil {
			return params, nil
		}
		value, ok := lookupPath(params, segments)
		if !ok {
			return params, nil
		}
		next, err := fn(value)
		if err != nil {
			return nil, fmt.Errorf("core: transform field %q: %w", path, err)
		}
		if err := setPath(params, segments, next); err != nil {
			return nil, err
		}
		return params, nil
	}
}

// ForEachItem applies fn to every object of the list found at path. An empty
// path addresses the "results" list of paginated responses.
func ForEachItem(path string, fn ChangeFunc) ChangeFunc {
	if strings.TrimSpace(path) == "" {
		path = "results"
	}
	segments := splitPath(path)
	return func(ctx context.Context, params Params, cc ChangeContext) (Params, error) {
		if params == nil || fn == nil {
			return params, nil
		}
		value, ok := lookupPath(params, segments)
		if !ok {
			return params, nil
		}
		items, ok := value.([]any)
		if !ok {
			return params, nil
		}
		for index, item := range items {
			object, ok := asObject(item)
			if !ok {
				continue
			}
			next, err := fn(ctx, object, cc)
			if err != nil {
				return nil, fmt.Errorf("core: item %d of %q: %w", index, path, err)
			}
			items[index] = next
		}
		return params, nil
	}
}

func SplitString(separator string) func(value any) (any, error) {
	return func(value any) (any, error) {
		if value == nil {
			return nil, nil
		}
		if _, ok := value.([]any); ok {
			return value, nil
		}
		text, err := toStringStrict(value)
		if err != nil {
			return nil, err
		}
		parts := []any{}
		for _, part := range strings.Split(text, separator) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			parts = append(parts, part)
		}
		return parts, nil
	}
}

func JoinStrings(separator string) func(value any) (any, error) {
	return func(value any) (any, error) {
		switch typed := value.(type) {
		case nil:
			return nil, nil
		case string:
			return typed, nil
		case []string:
			return strings.Join(typed, separator), nil
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				text, err := toStringStrict(item)
				if err != nil {
					return nil, err
				}
				parts = append(parts, text)
			}
			return strings.Join(parts, separator), nil
		default:
			return nil, fmt.Errorf("core: unsupported join from %T", value)
		}
	}
}

func toStringStrict(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case fmt.Stringer:
		return typed.String(), nil
	default:
		return "", fmt.Errorf("core: expected string value, got %T", value)
	}
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	raw := strings.Split(path, ".")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

func asObject(value any) (Params, bool) {
	object, ok := value.(map[string]any)
	return object, ok
}

func lookupPath(params Params, segments []string) (any, bool) {
	var current any = params
	for _, segment := range segments {
		object, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(params Params, segments []string, value any) error {
	current := params
	for index, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		if !exists || next == nil {
			created := Params{}
			current[segment] = created
			current = created
			continue
		}
		object, ok := asObject(next)
		if !ok {
			return fmt.Errorf("core: path %q is not an object", strings.Join(segments[:index+1], "."))
		}
		current = object
	}
	current[segments[len(segments)-1]] = value
	return nil
}

func removePath(params Params, segments []string) {
	parents := make([]Params, 0, len(segments))
	current := params
	for _, segment := range segments[:len(segments)-1] {
		object, ok := asObject(current[segment])
		if !ok {
			return
		}
		parents = append(parents, current)
		current = object
	}
	if _, ok := current[segments[len(segments)-1]]; !ok {
		return
	}
	delete(current, segments[len(segments)-1])

	for index := len(parents) - 1; index >= 0; index-- {
		key := segments[index]
		child, _ := asObject(parents[index][key])
		if len(child) > 0 {
			return
		}
		delete(parents[index], key)
	}
}

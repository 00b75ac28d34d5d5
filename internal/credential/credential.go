// Package credential resolves the completion endpoint API key once at startup.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Getter fetches a named parameter from a remote store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Source says where a resolved key came from.
type Source string

const (
	SourceNone      Source = "none"
	SourceEnv       Source = "env"
	SourceParameter Source = "parameter"
)

// tokenPayload is the JSON shape accepted for keys stored in SSM.
type tokenPayload struct {
	Token string `json:"token"`
}

// Loader picks the first non-empty key among the direct values, in order,
// then falls back to the parameter store.
type Loader struct {
	Values    []string
	Getter    Getter
	ParamName string
}

// Load returns the API key and its source. A missing key is not an error: it
// yields an empty key with SourceNone. Errors only come from the parameter
// store lookup.
func (l Loader) Load(ctx context.Context) (string, Source, error) {
	for _, v := range l.Values {
		if key := strings.TrimSpace(v); key != "" {
			return key, SourceEnv, nil
		}
	}

	name := strings.TrimSpace(l.ParamName)
	if name == "" || l.Getter == nil {
		return "", SourceNone, nil
	}
	raw, err := l.Getter.GetParameter(ctx, name)
	if err != nil {
		return "", SourceNone, fmt.Errorf("credential: fetch %q: %w", name, err)
	}
	key, err := parseToken(raw)
	if err != nil {
		return "", SourceNone, err
	}
	if key == "" {
		return "", SourceNone, nil
	}
	return key, SourceParameter, nil
}

// parseToken accepts either a bare key or {"token":"..."}.
func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("credential: unmarshal token payload: %w", err)
	}
	return strings.TrimSpace(tp.Token), nil
}

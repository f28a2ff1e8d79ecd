package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		name     string
		pairs    []string
		argsJSON string
		want     map[string]interface{}
		wantErr  string
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  map[string]interface{}{},
		},
		{
			name:  "numbers come through typed",
			pairs: []string{"a=5", "b=3.5"},
			want:  map[string]interface{}{"a": float64(5), "b": 3.5},
		},
		{
			name:  "plain words stay strings",
			pairs: []string{"name=Alice"},
			want:  map[string]interface{}{"name": "Alice"},
		},
		{
			name:  "booleans and null",
			pairs: []string{"dry_run=true", "tag=null"},
			want:  map[string]interface{}{"dry_run": true, "tag": nil},
		},
		{
			name:  "quoted value forces string",
			pairs: []string{`id="5"`},
			want:  map[string]interface{}{"id": "5"},
		},
		{
			name:  "value may contain equals",
			pairs: []string{"query=a=b"},
			want:  map[string]interface{}{"query": "a=b"},
		},
		{
			name:     "json document alone",
			argsJSON: `{"a": 5, "nested": {"x": 1}}`,
			want:     map[string]interface{}{"a": float64(5), "nested": map[string]interface{}{"x": float64(1)}},
		},
		{
			name:     "pairs win over document",
			pairs:    []string{"a=7"},
			argsJSON: `{"a": 5, "b": 3}`,
			want:     map[string]interface{}{"a": float64(7), "b": float64(3)},
		},
		{
			name:    "missing equals",
			pairs:   []string{"justakey"},
			wantErr: "expected key=value",
		},
		{
			name:    "empty key",
			pairs:   []string{"=5"},
			wantErr: "expected key=value",
		},
		{
			name:     "malformed json document",
			argsJSON: `{"a": `,
			wantErr:  "invalid --args-json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToolArgs(tt.pairs, tt.argsJSON)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

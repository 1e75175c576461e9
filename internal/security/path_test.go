package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "relative path", path: "courier.db"},
		{name: "nested relative path", path: "data/courier.db"},
		{name: "absolute path", path: "/var/lib/courier/courier.db"},
		{name: "dot prefix", path: "./courier.db"},
		{name: "empty", path: "", wantErr: true},
		{name: "traversal", path: "../courier.db", wantErr: true},
		{name: "embedded traversal", path: "data/../../etc/passwd", wantErr: true},
		{name: "null byte", path: "courier.db\x00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package skew

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		published time.Time
		wantErr   bool
	}{
		{"exact", now, false},
		{"59s past", now.Add(-59 * time.Second), false},
		{"59s future", now.Add(59 * time.Second), false},
		{"edge past", now.Add(-60 * time.Second), false},
		{"61s past", now.Add(-61 * time.Second), true},
		{"61s future", now.Add(61 * time.Second), true},
		{"zero", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAt(tt.published, now, DefaultMaxSkew)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrClockSkew)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTimestampWithSkew_UsesNowFunc(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = orig }()

	assert.NoError(t, ValidateTimestampWithSkew(fixed.Add(-time.Second), time.Minute))
	assert.Error(t, ValidateTimestampWithSkew(fixed.Add(-2*time.Minute), time.Minute))
	assert.Error(t, ValidateTimestampWithSkew(fixed, 0))
}

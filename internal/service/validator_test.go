package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		in        [4]string
		want      Input
		wantField string
	}{
		{
			name: "valid",
			in:   [4]string{"Ada Lovelace", "ada@example.com", "0400 000 000", "Female"},
			want: Input{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "0400 000 000", Gender: model.GenderFemale},
		},
		{
			name: "sanitizes and lower-cases",
			in:   [4]string{"  <Mary-Jane O'Neil>  ", "  MJ@Example.COM ", "", ""},
			want: Input{Name: "Mary-Jane O'Neil", Email: "mj@example.com"},
		},
		{
			name: "gender is matched loosely",
			in:   [4]string{"Sam", "sam@example.com", "", "prefer_not_to_say"},
			want: Input{Name: "Sam", Email: "sam@example.com", Gender: model.GenderPreferNotToSay},
		},
		{name: "missing name", in: [4]string{"  ", "a@b.co"}, wantField: "name"},
		{name: "short name", in: [4]string{"A", "a@b.co"}, wantField: "name"},
		{name: "long name", in: [4]string{strings.Repeat("a", 101), "a@b.co"}, wantField: "name"},
		{name: "digits in name", in: [4]string{"R2 D2", "a@b.co"}, wantField: "name"},
		{name: "missing email", in: [4]string{"Ada", ""}, wantField: "email"},
		{name: "email without dot", in: [4]string{"Ada", "ada@example"}, wantField: "email"},
		{name: "email with space", in: [4]string{"Ada", "ada lovelace@example.com"}, wantField: "email"},
		{name: "unknown gender", in: [4]string{"Ada", "ada@example.com", "", "Robot"}, wantField: "gender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.in[0], tt.in[1], tt.in[2], tt.in[3])
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "x@y.org", NormalizeEmail(" <X@Y.org> "))
}

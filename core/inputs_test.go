package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputsValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Inputs
		wantErr bool
	}{
		{"valid", Inputs{BirthDate: "1990-05-17"}, false},
		{"padded", Inputs{BirthDate: " 1990-05-17 "}, false},
		{"missing", Inputs{}, true},
		{"wrong layout", Inputs{BirthDate: "17.05.1990"}, true},
		{"impossible day", Inputs{BirthDate: "1990-02-31"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInputs)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInputsEffectiveValues(t *testing.T) {
	blank := Inputs{BirthDate: "1990-05-17", Name: "  ", Question: ""}
	assert.Equal(t, DefaultName, blank.EffectiveName())
	assert.Equal(t, DefaultQuestion, blank.EffectiveQuestion())

	set := Inputs{BirthDate: "1990-05-17", Name: " Li ", Question: " career? "}
	assert.Equal(t, "Li", set.EffectiveName())
	assert.Equal(t, "career?", set.EffectiveQuestion())
}

func TestSessionKey(t *testing.T) {
	results := map[TaskKind]TaskResult{
		TaskOrigin:    {ID: "X1"},
		TaskCelestial: {ID: "Y2"},
		TaskInquiry:   {ID: "Z3"},
	}
	k := NewSessionKey(results, " love ")
	assert.Equal(t, "X1-Y2-Z3-love", k.String())
	assert.False(t, k.IsZero())

	// the blank question stays blank in the key even though a default is sent
	k2 := NewSessionKey(results, "")
	assert.Equal(t, "X1-Y2-Z3-", k2.String())
	assert.NotEqual(t, k, k2)
	assert.True(t, SessionKey{}.IsZero())
}

func TestStreamRequestValues(t *testing.T) {
	key := SessionKey{OriginID: "X1", CelestialID: "Y2", InquiryID: "Z3"}
	req := NewStreamRequest(key, Inputs{BirthDate: "1990-05-17"})

	v := req.Values()
	require.Len(t, v, 5)
	assert.Equal(t, "X1", v.Get("origin_id"))
	assert.Equal(t, "Y2", v.Get("celestial_id"))
	assert.Equal(t, "Z3", v.Get("inquiry_id"))
	assert.Equal(t, DefaultQuestion, v.Get("question"))
	assert.Equal(t, DefaultName, v.Get("name"))
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

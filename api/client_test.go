package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/internal/testutil"
	"github.com/hupe1980/astrooracle/task"
)

func TestNewClientValidatesBaseURL(t *testing.T) {
	for _, bad := range []string{"", "/api", "localhost:8000", "ftp://host", "http://"} {
		_, err := NewClient(bad)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, bad)
	}

	c, err := NewClient("https://oracle.example.com/base/")
	require.NoError(t, err)
	assert.Equal(t, "https://oracle.example.com/base/api/v1/oracle/stream", c.StreamURL())
}

func TestClientEndpoints(t *testing.T) {
	srv := testutil.NewOracleServer(t)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	in := core.Inputs{BirthDate: "1990-05-17", Name: "Li", Question: "career?"}
	ctx := context.Background()

	origin, err := c.Origin(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "X1", origin.ID)
	assert.NotEmpty(t, origin.Payload)

	celestial, err := c.Celestial(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Y2", celestial.ID)

	inquiry, err := c.Inquiry(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Z3", inquiry.ID)

	assert.Equal(t, []map[string]any{{"birth_date": "1990-05-17", "name": "Li"}}, srv.Bodies(core.TaskOrigin))
	assert.Equal(t, []map[string]any{{}}, srv.Bodies(core.TaskCelestial))
	assert.Equal(t, []map[string]any{{"question": "career?", "name": "Li"}}, srv.Bodies(core.TaskInquiry))
}

func TestClientDefaultsBlankInputs(t *testing.T) {
	srv := testutil.NewOracleServer(t)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Inquiry(context.Background(), core.Inputs{BirthDate: "1990-05-17"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"question": core.DefaultQuestion, "name": core.DefaultName}}, srv.Bodies(core.TaskInquiry))
}

func TestClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		reply   testutil.Reply
		wantErr error
		wantMsg string
	}{
		{"unsuccessful envelope", testutil.Reply{Body: testutil.NewEnvelopeBuilder().Failed("no starship").Build()}, ErrNotSuccessful, "no starship"},
		{"server error", testutil.Reply{Status: http.StatusInternalServerError, Body: `{"detail":"db down"}`}, nil, "db down"},
		{"malformed body", testutil.Reply{Body: `<html>`}, nil, "malformed response body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewOracleServer(t)
			srv.Reply(core.TaskCelestial, tt.reply)
			c, err := NewClient(srv.URL)
			require.NoError(t, err)

			_, err = c.Celestial(context.Background())
			require.Error(t, err)
			var re *ResponseError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, core.TaskCelestial, re.Kind)
			assert.Contains(t, err.Error(), tt.wantMsg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClientSuccessWithoutIdentifier(t *testing.T) {
	srv := testutil.NewOracleServer(t)
	srv.Reply(core.TaskOrigin, testutil.Reply{Body: testutil.NewEnvelopeBuilder().Set("data.starship.name", "Voyager").Build()})
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	res, err := c.Origin(context.Background(), core.Inputs{BirthDate: "1990-05-17"})
	require.NoError(t, err)
	assert.False(t, res.HasID())
}

func TestDecodeEnvelopeIdentifierPaths(t *testing.T) {
	bodies := map[string]string{
		"data.starship.archive_id": `{"success":true,"data":{"starship":{"archive_id":"A"}}}`,
		"data.archive_id":          `{"success":true,"data":{"archive_id":"A"}}`,
		"data.id":                  `{"data":{"id":"A"}}`,
		"id":                       `{"id":"A"}`,
	}
	for name, body := range bodies {
		res, err := decodeEnvelope(core.TaskOrigin, http.StatusOK, []byte(body))
		require.NoError(t, err, name)
		assert.Equal(t, "A", res.ID, name)
	}
}

func TestClientSpecsRunThroughOrchestrator(t *testing.T) {
	srv := testutil.NewOracleServer(t)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	out := task.NewOrchestrator(c.Specs(core.Inputs{BirthDate: "1990-05-17"})).Run(context.Background())
	assert.True(t, out.Ready)
	results := out.Results()
	assert.Equal(t, "X1", results[core.TaskOrigin].ID)
	assert.Equal(t, "Y2", results[core.TaskCelestial].ID)
	assert.Equal(t, "Z3", results[core.TaskInquiry].ID)
}

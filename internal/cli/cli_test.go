package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/urdufact-go/internal/resume"
	"github.com/raphaelgruber/urdufact-go/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"0d", 0, false},
		{"-1d", 0, true},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResumeValidatorLenient(t *testing.T) {
	called := false
	build := func() (resume.Validator, error) {
		called = true
		return resume.RequireStrings("claim_urdu")
	}

	v, err := resumeValidator(true, build)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, called)

	v, err = resumeValidator(false, build)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.True(t, called)
}

func TestTaskNames(t *testing.T) {
	assert.Equal(t, []string{"claims", "qa"}, taskNames())

	var names []string
	for _, c := range translateCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"claims", "qa"}, names)
}

func TestProgressModelCountsEvents(t *testing.T) {
	var m tea.Model = newProgressModel("translate_qa/simpleqa", func() {})

	for _, e := range []service.Event{
		{Kind: service.EventStart, Total: 4},
		{Kind: service.EventSkipped, Index: 1, Total: 4, ID: "1"},
		{Kind: service.EventProcessed, Index: 2, Total: 4, ID: "2"},
		{Kind: service.EventFailed, Index: 3, Total: 4, ID: "3", Err: errors.New("boom")},
	} {
		var cmd tea.Cmd
		m, cmd = m.Update(eventMsg(e))
		assert.Nil(t, cmd)
	}

	pm := m.(progressModel)
	assert.Equal(t, 4, pm.total)
	assert.Equal(t, 3, pm.position)
	assert.Equal(t, 1, pm.processed)
	assert.Equal(t, 1, pm.skipped)
	assert.Equal(t, 1, pm.failed)
	assert.Equal(t, "3", pm.lastID)
	assert.Contains(t, pm.renderContent(), "3/4 records")

	m, cmd := m.Update(eventMsg(service.Event{Kind: service.EventDone, Total: 4}))
	assert.NotNil(t, cmd)
	pm = m.(progressModel)
	assert.True(t, pm.done)
	assert.NoError(t, pm.err)
	assert.Contains(t, pm.renderContent(), "Completed")
}

func TestProgressModelDoneWithError(t *testing.T) {
	var m tea.Model = newProgressModel("urdufactcheck/simpleqa", func() {})
	m, _ = m.Update(eventMsg(service.Event{Kind: service.EventDone, Err: errors.New("load input: no such file")}))

	pm := m.(progressModel)
	assert.Contains(t, pm.renderContent(), "Run failed")
	assert.Contains(t, pm.renderContent(), "no such file")
}

func TestProgressModelQuitCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var m tea.Model = newProgressModel("x/y", cancel)

	m, cmd := m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	assert.NotNil(t, cmd)
	assert.True(t, m.(progressModel).quitting)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"tool", "dataset", "model", "cost"}, [][]string{
		{"urdufactcheck", "simpleqa", "gpt-4o", "12.50"},
	})
	for _, s := range []string{"tool", "urdufactcheck", "simpleqa", "gpt-4o", "12.50"} {
		assert.Contains(t, out, s)
	}
}

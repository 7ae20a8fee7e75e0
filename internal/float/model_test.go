package float

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/surface"
)

func publish(gen string, id, secs int64) messageMsg {
	return messageMsg(surface.Message{
		Version:    surface.Version,
		Kind:       surface.KindPublish,
		Generation: gen,
		Publish:    &surface.PublishPayload{TaskID: id, TaskName: "Deep work", Seconds: secs},
	})
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestPublishRendersClock(t *testing.T) {
	ch := make(chan surface.Message)
	m := New(ch, nil)
	m, cmd := step(t, m, publish("g1", 4, 3725))
	assert.NotNil(t, cmd, "keeps waiting for the stream")
	view := m.View()
	assert.Contains(t, view, "Deep work")
	assert.Contains(t, view, "01:02:05")
	assert.Contains(t, view, "[s] stop")
}

func TestClearBlanksAndAdoptsGeneration(t *testing.T) {
	m := New(nil, nil)
	m, _ = step(t, m, publish("g1", 4, 10))
	m, _ = step(t, m, messageMsg(surface.Message{Version: surface.Version, Kind: surface.KindClear, Generation: "g2"}))
	assert.Equal(t, "g2", m.generation)
	assert.Zero(t, m.taskID)
	assert.Contains(t, m.View(), "no timer running")
}

func TestInvalidMessageIgnored(t *testing.T) {
	m := New(nil, nil)
	m, _ = step(t, m, publish("g1", 4, 10))
	m, _ = step(t, m, messageMsg(surface.Message{Version: 9, Kind: surface.KindClear, Generation: "g2"}))
	assert.Equal(t, int64(4), m.taskID)
	assert.Equal(t, "g1", m.generation)
}

func TestStopSendsGeneration(t *testing.T) {
	var gotGen string
	var gotID int64
	m := New(nil, func(_ context.Context, gen string, id int64) error {
		gotGen, gotID = gen, id
		return nil
	})
	m, _ = step(t, m, publish("g7", 9, 10))
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	require.NotNil(t, cmd)
	assert.True(t, m.stopping)

	// a second press while stopping does nothing
	_, again := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Nil(t, again)

	m, _ = step(t, m, cmd())
	assert.Equal(t, "g7", gotGen)
	assert.Equal(t, int64(9), gotID)
	assert.Zero(t, m.taskID)
	assert.False(t, m.stopping)
}

func TestStopErrorShown(t *testing.T) {
	m := New(nil, func(context.Context, string, int64) error { return errors.New("stale surface generation") })
	m, _ = step(t, m, publish("g1", 2, 5))
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = step(t, m, cmd())
	assert.Equal(t, int64(2), m.taskID)
	assert.Contains(t, m.View(), "stale surface generation")
}

func TestStopIgnoredWhenIdle(t *testing.T) {
	m := New(nil, func(context.Context, string, int64) error {
		t.Fatal("stop called while idle")
		return nil
	})
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Nil(t, cmd)
}

func TestStreamClosedQuits(t *testing.T) {
	ch := make(chan surface.Message)
	close(ch)
	m := New(ch, nil)
	msg := m.Init()()
	m, cmd := step(t, m, msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "stream closed")
}

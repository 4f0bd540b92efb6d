package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

type stubAsker struct {
	asked []string
	err   error
}

func (s *stubAsker) Answer(_ context.Context, q string) (*engine.RetrievalResult, error) {
	s.asked = append(s.asked, q)
	if s.err != nil {
		return nil, s.err
	}
	return &engine.RetrievalResult{
		Question: q,
		Answer:   "The sky is blue.",
		Sources:  []types.Hit{{ID: 1, Content: "The sky is blue.", Filename: "sky.txt"}},
	}, nil
}

func typeText(m tea.Model, s string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestModel_AskRoundTrip(t *testing.T) {
	asker := &stubAsker{}
	var m tea.Model = New(asker, "2 files, 5 segments", 0)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Contains(t, m.View(), "No questions yet.")

	m = typeText(m, "what colour is the sky?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.(Model).pending)

	m, _ = m.Update(cmd())
	got := m.(Model)
	assert.False(t, got.pending)
	assert.Equal(t, []string{"what colour is the sky?"}, asker.asked)
	require.Len(t, got.history, 1)
	assert.Contains(t, got.renderTranscript(), "The sky is blue.")
	assert.Contains(t, got.renderTranscript(), "sky.txt")
	assert.Empty(t, got.input.Value())
}

func TestModel_ErrorIsShown(t *testing.T) {
	asker := &stubAsker{err: errors.New("provider down")}
	var m tea.Model = New(asker, "", 0)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = typeText(m, "hi")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(cmd())

	got := m.(Model)
	assert.Contains(t, got.status, "provider down")
	assert.Contains(t, got.renderTranscript(), "error: provider down")
}

func TestModel_EmptyEnterDoesNothing(t *testing.T) {
	var m tea.Model = New(&stubAsker{}, "", 0)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.(Model).pending)
}

package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndLoadExchange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ex := &Exchange{
		Question: "¿Cuándo vence el contrato?",
		Answer:   "En enero.",
		Sources:  []string{"contrato.pdf"},
	}
	require.NoError(t, s.RecordExchange(ctx, ex))
	assert.NotEmpty(t, ex.ID)
	assert.NotEmpty(t, ex.ConversationID)
	assert.False(t, ex.CreatedAt.IsZero())

	got, err := s.Conversation(ctx, ex.ConversationID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ex.Question, got[0].Question)
	assert.Equal(t, []string{"contrato.pdf"}, got[0].Sources)
	assert.False(t, got[0].Cached)
}

func TestConversationGrouping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &Exchange{Question: "q1", Answer: "a1"}
	require.NoError(t, s.RecordExchange(ctx, first))

	second := &Exchange{ConversationID: first.ConversationID, Question: "q2", Answer: "a2", Cached: true}
	require.NoError(t, s.RecordExchange(ctx, second))

	other := &Exchange{Question: "unrelated", Answer: "x"}
	require.NoError(t, s.RecordExchange(ctx, other))

	got, err := s.Conversation(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].Question)
	assert.Equal(t, "q2", got[1].Question)
	assert.True(t, got[1].Cached)

	list, err := s.ListConversations(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestConversationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Conversation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFeedback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ex := &Exchange{Question: "q", Answer: "a"}
	require.NoError(t, s.RecordExchange(ctx, ex))

	require.NoError(t, s.AddFeedback(ctx, ex.ID, VerdictPositive, ""))
	require.NoError(t, s.AddFeedback(ctx, ex.ID, VerdictNegative, "cita incorrecta"))

	st, err := s.Feedback(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Positive)
	assert.Equal(t, 1, st.Negative)
}

func TestFeedbackInvalidVerdict(t *testing.T) {
	s := openTestStore(t)
	err := s.AddFeedback(context.Background(), "any", Verdict("meh"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}

func TestFeedbackUnknownExchange(t *testing.T) {
	s := openTestStore(t)
	err := s.AddFeedback(context.Background(), "nope", VerdictPositive, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

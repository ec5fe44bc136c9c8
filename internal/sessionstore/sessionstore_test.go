package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetActiveTaskOverwritesAndCountsTasks(t *testing.T) {
	s := &Session{SessionID: "sess-1"}

	s.SetActiveTask("task-1")
	assert.True(t, s.IsActiveTask("task-1"))
	assert.Equal(t, 1, s.Clone().TotalTasks)

	s.SetActiveTask("task-2")
	assert.True(t, s.IsActiveTask("task-2"))
	assert.False(t, s.IsActiveTask("task-1"))
	assert.Equal(t, 2, s.Clone().TotalTasks)
}

func TestClearActiveTaskOnlyMatchesCurrentTask(t *testing.T) {
	s := &Session{SessionID: "sess-1"}
	s.SetActiveTask("task-1")

	// A stale callback for a superseded task must not clear the new one.
	s.SetActiveTask("task-2")
	assert.False(t, s.ClearActiveTask("task-1"))
	assert.True(t, s.IsActiveTask("task-2"))

	assert.True(t, s.ClearActiveTask("task-2"))
	assert.Equal(t, "", s.Clone().ActiveTaskID)
}

func TestCloneIsIndependentSnapshot(t *testing.T) {
	s := &Session{SessionID: "sess-1", AgentID: "agent-1"}
	snap := s.Clone()

	s.SetError("boom")
	assert.Equal(t, "", snap.LastError, "clone taken before the mutation must not observe it")
	assert.Equal(t, "boom", s.Clone().LastError)
}

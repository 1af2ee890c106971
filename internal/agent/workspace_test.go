package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcraft/internal/config"
	"colorcraft/internal/model"
	"colorcraft/internal/service"
	"colorcraft/internal/volc"
)

func newMockAgent(ttl time.Duration) *ColoringBookAgent {
	ark := volc.NewArkClient(config.ArkConfig{Mock: true})
	return NewColoringBookAgent(
		service.NewPlanner(ark, "", service.PlanOptions{PageCount: 2}),
		service.NewIllustrator(ark, "", ""),
		service.NewChatter(ark, ""),
		ttl, time.Minute,
	)
}

func TestWorkspaceCreateAndReuse(t *testing.T) {
	a := newMockAgent(time.Hour)

	ws := a.Workspace("")
	require.NotEmpty(t, ws.ID)
	assert.Same(t, ws, a.Workspace(ws.ID))

	got, ok := a.GetWorkspace(ws.ID)
	require.True(t, ok)
	assert.Same(t, ws, got)

	other := a.Workspace("")
	assert.NotEqual(t, ws.ID, other.ID)

	_, ok = a.GetWorkspace("missing")
	assert.False(t, ok)
}

func TestWorkspacesAreIndependent(t *testing.T) {
	a := newMockAgent(time.Hour)
	first := a.Workspace("first")
	second := a.Workspace("second")

	run, err := first.Book.Generate(context.Background(), "Space", "Leo")
	require.NoError(t, err)
	<-run.Done()

	assert.Equal(t, model.BookReady, first.Book.State().Status)
	assert.Equal(t, model.BookIdle, second.Book.State().Status)
	assert.Len(t, second.Chat.Transcript(), 1)
}

func TestWorkspaceExpires(t *testing.T) {
	a := newMockAgent(10 * time.Millisecond)
	ws := a.Workspace("short")

	time.Sleep(30 * time.Millisecond)
	_, ok := a.GetWorkspace(ws.ID)
	assert.False(t, ok)
}

func TestInfo(t *testing.T) {
	a := newMockAgent(time.Hour)
	a.Workspace("one")

	info := a.Info()
	assert.Equal(t, "coloring_book_agent", info["name"])
	assert.Equal(t, 1, info["sessions"])
}

package sharedcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/conductormesh/message"
)

func TestContext_GetSetDelete(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("key", "value")
	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	c.Delete("key")
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestContext_AppendHistoryTrimsFIFO(t *testing.T) {
	c := New(WithMaxHistoryLength(2))
	c.AppendHistory(message.User("one"))
	c.AppendHistory(message.User("two"))
	c.AppendHistory(message.User("three"))

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Content)
	assert.Equal(t, "three", history[1].Content)
}

func TestContext_AgentMessages(t *testing.T) {
	c := New()
	c.AppendAgentMessage("researcher", message.Assistant("draft"))
	c.AppendAgentMessage("researcher", message.Assistant("revision"))
	c.AppendAgentMessage("writer", message.Assistant("other"))

	msgs := c.AgentMessages("researcher")
	require.Len(t, msgs, 2)
	assert.Equal(t, "draft", msgs[0].Content)
	assert.Empty(t, c.AgentMessages("unknown"))
}

// TestContext_SnapshotRestoreRoundTrip checks the invariant documented on
// Restore: for any sequence of Set/AppendHistory/AppendAgentMessage calls,
// snapshotting and restoring into a fresh Context reproduces the same
// observable state.
func TestContext_SnapshotRestoreRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := New()

		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 10).Draw(rt, "keys")
		for _, k := range keys {
			c.Set(k, rapid.IntRange(0, 1000).Draw(rt, "value"))
		}

		historyLen := rapid.IntRange(0, 10).Draw(rt, "historyLen")
		for i := 0; i < historyLen; i++ {
			c.AppendHistory(message.User(rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "historyMsg")))
		}

		agentIDs := rapid.SliceOfN(rapid.StringMatching(`agent_[a-z0-9]{3,8}`), 0, 5).Draw(rt, "agentIDs")
		for _, id := range agentIDs {
			n := rapid.IntRange(0, 5).Draw(rt, "agentMsgCount")
			for i := 0; i < n; i++ {
				c.AppendAgentMessage(id, message.Assistant(rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "agentMsg")))
			}
		}

		snap := c.Snapshot()

		restored := New()
		restored.Restore(snap)

		assert.Equal(t, c.History(), restored.History())
		for _, k := range keys {
			want, _ := c.Get(k)
			got, ok := restored.Get(k)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
		for _, id := range agentIDs {
			assert.Equal(t, c.AgentMessages(id), restored.AgentMessages(id))
		}
	})
}

func TestContext_CloneIsIndependent(t *testing.T) {
	c := New()
	c.Set("shared", "original")
	c.AppendHistory(message.User("first"))

	clone := c.Clone()
	clone.Set("shared", "mutated")
	clone.AppendHistory(message.User("second"))

	v, _ := c.Get("shared")
	assert.Equal(t, "original", v)
	assert.Len(t, c.History(), 1)
	assert.Len(t, clone.History(), 2)
}

package models

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireMember_RankValue(t *testing.T) {
	tests := []struct {
		name   string
		member WireMember
		want   int
	}{
		{"integer rank", WireMember{Rank: 3}, 3},
		{"integer wins over string", WireMember{Rank: 2, Ranking: "7"}, 2},
		{"plain string", WireMember{Ranking: "4"}, 4},
		{"decorated string", WireMember{Ranking: "#5 (high)"}, 5},
		{"no digits", WireMember{Ranking: "high"}, 0},
		{"zero", WireMember{Ranking: "0"}, 0},
		{"empty", WireMember{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.member.RankValue())
		})
	}
}

func TestWireTable_ToParsedTable(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		var wt *WireTable
		assert.Nil(t, wt.ToParsedTable())
	})

	t.Run("single table drops unranked rows", func(t *testing.T) {
		wt := &WireTable{
			BillID:                "S. 383-116",
			InvestigationComplete: true,
			Members: []WireMember{
				{Name: "Joe Manchin", Chamber: "Senate", State: "WV", Ranking: "1", Reason: "Chair"},
				{Name: "Nobody", Ranking: "n/a"},
				{Name: "", Rank: 2},
			},
		}
		pt := wt.ToParsedTable()
		require.NotNil(t, pt)

		assert.False(t, pt.HasDualTables)
		assert.Equal(t, 1, pt.TotalMembers)
		assert.Equal(t, "S. 383-116", pt.BillID)
		assert.True(t, pt.InvestigationComplete)
		assert.Equal(t, CongressMember{Name: "Joe Manchin", Chamber: "Senate", State: "WV", Rank: 1, Reason: "Chair"}, pt.Members[0])
	})

	t.Run("dual tables fill members", func(t *testing.T) {
		wt := &WireTable{
			AlignedMembers: []WireMember{{Name: "Ted Cruz", Rank: 1}},
			OpposedMembers: []WireMember{{Name: "Elizabeth Warren", Ranking: "1"}, {Name: "Bernie Sanders", Ranking: "2"}},
		}
		pt := wt.ToParsedTable()
		require.NotNil(t, pt)

		assert.True(t, pt.HasDualTables)
		assert.Len(t, pt.AlignedMembers, 1)
		assert.Len(t, pt.OpposedMembers, 2)
		assert.Equal(t, 3, pt.TotalMembers)
		assert.Equal(t, "Ted Cruz", pt.Members[0].Name)
		assert.Equal(t, "Bernie Sanders", pt.Members[2].Name)
	})

	t.Run("no usable rows", func(t *testing.T) {
		wt := &WireTable{Members: []WireMember{{Name: "Nobody"}}}
		assert.Nil(t, wt.ToParsedTable())
	})
}

func TestWireTable_DecodesBackendKeys(t *testing.T) {
	raw := `{"has_dual_tables":true,"bill_id":"HR 1","aligned_members":[{"name":"A","ranking":"1"}],"opposed_members":[]}`
	var wt WireTable
	require.NoError(t, json.Unmarshal([]byte(raw), &wt))

	assert.True(t, wt.HasDualTables)
	assert.Equal(t, "HR 1", wt.BillID)
	require.Len(t, wt.AlignedMembers, 1)
	assert.Equal(t, 1, wt.AlignedMembers[0].RankValue())
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusFailed, ParseStatus("failed", StatusCompleted))
	assert.Equal(t, StatusInProgress, ParseStatus("in_progress", StatusCompleted))
	assert.Equal(t, StatusCompleted, ParseStatus("done", StatusCompleted))
	assert.Equal(t, StatusPending, ParseStatus("", StatusPending))

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestParseCommunicationType(t *testing.T) {
	tests := map[string]CommunicationType{
		"message":       CommMessage,
		"tool_call":     CommToolCall,
		"reflection":    CommReflection,
		"handoff":       CommHandoff,
		"table_results": CommTableResults,
		"thought":       CommMessage,
		"":              CommMessage,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCommunicationType(in), in)
	}
}

func TestWireMessage_Text(t *testing.T) {
	assert.Equal(t, "boom", WireMessage{Error: "boom", Message: "hello"}.Text())
	assert.Equal(t, "hello", WireMessage{Message: "hello"}.Text())
	assert.Empty(t, WireMessage{}.Text())

	msg := WireMessage{Message: "Investigation Started for Acme"}
	assert.True(t, msg.Mentions("investigation started"))
	assert.False(t, msg.Mentions("stopped"))
}

func TestWireMessage_DecodeData(t *testing.T) {
	var data AgentCommunicationData

	require.NoError(t, WireMessage{}.DecodeData(&data))
	require.NoError(t, WireMessage{Data: json.RawMessage("null")}.DecodeData(&data))
	assert.Empty(t, data.Agent)

	require.NoError(t, WireMessage{Data: json.RawMessage(`{"agent":"researcher"}`)}.DecodeData(&data))
	assert.Equal(t, "researcher", data.Agent)

	assert.Error(t, WireMessage{Data: json.RawMessage(`[1,2`)}.DecodeData(&data))
}

func TestCommunication_Body(t *testing.T) {
	assert.Equal(t, "full", Communication{Simplified: "short", FullContent: "full"}.Body())
	assert.Equal(t, "short", Communication{Simplified: "short"}.Body())
}

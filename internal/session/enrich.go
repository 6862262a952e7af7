package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thebtf/lobbywatch/pkg/models"
)

// TableParser extracts a ranked member table from free text.
type TableParser interface {
	Parse(text string) *models.ParsedTable
}

// Enrich scans c for an embedded member table. When one is found it returns a
// copy recategorized as table results with a ranked digest of at most limit
// entries per table; otherwise it returns c unchanged.
func Enrich(c models.Communication, parser TableParser, limit int) models.Communication {
	if parser == nil {
		return c
	}
	table := parser.Parse(c.Body())
	if table == nil || len(table.Members) == 0 {
		return c
	}
	return withTable(c, table, limit)
}

// withTable returns a copy of c carrying table.
func withTable(c models.Communication, table *models.ParsedTable, limit int) models.Communication {
	out := c
	out.Type = models.CommTableResults
	out.TableData = table
	out.Status = models.StatusCompleted
	out.Simplified = tableSummary(table)
	out.FullContent = tableDigest(table, limit)
	return out
}

func tableSummary(t *models.ParsedTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d congress %s", t.TotalMembers, plural(t.TotalMembers, "member", "members"))
	if t.HasDualTables {
		fmt.Fprintf(&b, " (%d aligned, %d opposed)", len(t.AlignedMembers), len(t.OpposedMembers))
	}
	if t.BillID != "" {
		fmt.Fprintf(&b, " for %s", t.BillID)
	}
	return b.String()
}

func tableDigest(t *models.ParsedTable, limit int) string {
	if limit <= 0 {
		limit = 10
	}
	var b strings.Builder
	if t.HasDualTables {
		writeSection(&b, "Aligned members", t.AlignedMembers, limit)
		b.WriteString("\n")
		writeSection(&b, "Opposed members", t.OpposedMembers, limit)
	} else {
		writeSection(&b, "Congress members by involvement rank", t.Members, limit)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, members []models.CongressMember, limit int) {
	ranked := RankedMembers(members)
	shown := ranked
	if len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintf(b, "%s (top %d of %d):\n", title, len(shown), len(ranked))
	for _, m := range shown {
		fmt.Fprintf(b, "%d. %s\n", m.Rank, formatMember(m))
	}
}

// RankedMembers returns a copy of members sorted by ascending rank.
func RankedMembers(members []models.CongressMember) []models.CongressMember {
	out := make([]models.CongressMember, len(members))
	copy(out, members)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func formatMember(m models.CongressMember) string {
	var b strings.Builder
	b.WriteString(m.Name)
	if m.Party != "" {
		fmt.Fprintf(&b, " (%s)", m.Party)
	}
	where := m.State
	if m.District != "" {
		where += "-" + m.District
	}
	switch {
	case m.Chamber != "" && where != "":
		fmt.Fprintf(&b, ", %s, %s", m.Chamber, where)
	case m.Chamber != "":
		fmt.Fprintf(&b, ", %s", m.Chamber)
	case where != "":
		fmt.Fprintf(&b, ", %s", where)
	}
	if m.Reason != "" {
		fmt.Fprintf(&b, ": %s", m.Reason)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

package models

import (
	"regexp"
	"strconv"
)

// Chamber names used for parsed members.
const (
	ChamberHouse  = "House"
	ChamberSenate = "Senate"
)

// CongressMember is one ranked row of an investigation result table.
type CongressMember struct {
	Name     string `json:"name"`
	Chamber  string `json:"chamber"`
	Party    string `json:"party,omitempty"`
	State    string `json:"state"`
	District string `json:"district,omitempty"`
	Rank     int    `json:"rank"`
	Reason   string `json:"reason"`
}

// ParsedTable is the structured result extracted from agent output.
// Members holds every member; in dual-table mode it is the aligned
// members followed by the opposed members.
type ParsedTable struct {
	Members               []CongressMember `json:"members"`
	TotalMembers          int              `json:"totalMembers"`
	InvestigationComplete bool             `json:"investigationComplete"`
	BillID                string           `json:"billId,omitempty"`
	AlignedMembers        []CongressMember `json:"alignedMembers,omitempty"`
	OpposedMembers        []CongressMember `json:"opposedMembers,omitempty"`
	HasDualTables         bool             `json:"hasDualTables"`
}

// Session is one investigation run for a company and bill pair.
type Session struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	Bill        string `json:"bill"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	StartedAt   string `json:"startedAt"`
}

// WireTable is a table the backend already parsed and ships inside an
// investigation_concluded payload.
type WireTable struct {
	Members               []WireMember `json:"members"`
	AlignedMembers        []WireMember `json:"aligned_members"`
	OpposedMembers        []WireMember `json:"opposed_members"`
	HasDualTables         bool         `json:"has_dual_tables"`
	BillID                string       `json:"bill_id"`
	InvestigationComplete bool         `json:"investigation_complete"`
	Summary               string       `json:"summary"`
	TableType             string       `json:"table_type"`
}

// WireMember is a backend member row. The backend reports rank either as an
// integer "rank" or as a string "ranking".
type WireMember struct {
	Name     string `json:"name"`
	Chamber  string `json:"chamber"`
	Party    string `json:"party"`
	State    string `json:"state"`
	District string `json:"district"`
	Rank     int    `json:"rank"`
	Ranking  string `json:"ranking"`
	Reason   string `json:"reason"`
}

var digitsRe = regexp.MustCompile(`\d+`)

// RankValue returns the member's rank, or 0 when none is recoverable.
func (w WireMember) RankValue() int {
	if w.Rank > 0 {
		return w.Rank
	}
	if m := digitsRe.FindString(w.Ranking); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func convertMembers(in []WireMember) []CongressMember {
	out := make([]CongressMember, 0, len(in))
	for _, w := range in {
		rank := w.RankValue()
		if rank <= 0 || w.Name == "" {
			continue
		}
		out = append(out, CongressMember{
			Name:     w.Name,
			Chamber:  w.Chamber,
			Party:    w.Party,
			State:    w.State,
			District: w.District,
			Rank:     rank,
			Reason:   w.Reason,
		})
	}
	return out
}

// ToParsedTable converts a backend table into the domain form. Rows without
// a positive rank are dropped. Returns nil when no member survives.
func (t *WireTable) ToParsedTable() *ParsedTable {
	if t == nil {
		return nil
	}
	pt := &ParsedTable{
		BillID:                t.BillID,
		InvestigationComplete: t.InvestigationComplete,
	}
	aligned := convertMembers(t.AlignedMembers)
	opposed := convertMembers(t.OpposedMembers)
	if t.HasDualTables || len(aligned) > 0 || len(opposed) > 0 {
		pt.HasDualTables = true
		pt.AlignedMembers = aligned
		pt.OpposedMembers = opposed
	}
	pt.Members = convertMembers(t.Members)
	if len(pt.Members) == 0 && pt.HasDualTables {
		pt.Members = append(append([]CongressMember{}, aligned...), opposed...)
	}
	if len(pt.Members) == 0 {
		return nil
	}
	pt.TotalMembers = len(pt.Members)
	return pt
}

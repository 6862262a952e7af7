// Package tableparser extracts ranked congressional member tables from
// free-form markdown produced by investigation agents.
package tableparser

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/pkg/models"
)

// DualTableOrder decides which of two extracted tables holds the aligned members.
type DualTableOrder string

const (
	// AlignedFirst treats the first table as aligned/supportive and the second as opposed.
	AlignedFirst DualTableOrder = "aligned_first"
	// OpposedFirst treats the first table as opposed and the second as aligned.
	OpposedFirst DualTableOrder = "opposed_first"
)

// ParseDualTableOrder maps a configuration value onto a DualTableOrder.
// Unknown values fall back to AlignedFirst.
func ParseDualTableOrder(s string) DualTableOrder {
	if DualTableOrder(strings.ToLower(strings.TrimSpace(s))) == OpposedFirst {
		return OpposedFirst
	}
	return AlignedFirst
}

// minTableLines is the number of buffered lines (header, separator, one row)
// after which a blank or non-pipe line closes the table.
const minTableLines = 3

// minRowPipes is the pipe count a line needs to be buffered as a data row.
const minRowPipes = 4

// Parser is a stateless table extractor. The zero value uses AlignedFirst.
type Parser struct {
	Order DualTableOrder
}

// New creates a Parser with the given dual-table order.
func New(order DualTableOrder) *Parser {
	return &Parser{Order: order}
}

var defaultParser = &Parser{Order: AlignedFirst}

// Parse runs the default parser over text.
func Parse(text string) *models.ParsedTable {
	return defaultParser.Parse(text)
}

// Parse extracts one or two member tables from text. It returns nil when no
// table with at least one valid row is found. Parse never panics.
func (p *Parser) Parse(text string) (result *models.ParsedTable) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Table parser recovered from panic")
			result = nil
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	dual := countHeaders(lines) == 2
	tables := extractTables(lines)
	if len(tables) == 0 {
		return nil
	}

	table := &models.ParsedTable{
		BillID:                ExtractBillID(text),
		InvestigationComplete: DetectCompletion(text),
	}

	if dual && len(tables) >= 2 {
		first := parseRows(tables[0])
		second := parseRows(tables[1])
		aligned, opposed := first, second
		if p.Order == OpposedFirst {
			aligned, opposed = second, first
		}
		table.HasDualTables = true
		table.AlignedMembers = aligned
		table.OpposedMembers = opposed
		table.Members = append(append([]models.CongressMember{}, aligned...), opposed...)
	} else {
		for _, t := range tables {
			table.Members = append(table.Members, parseRows(t)...)
		}
	}

	if len(table.Members) == 0 {
		return nil
	}
	table.TotalMembers = len(table.Members)

	log.Debug().
		Int("members", table.TotalMembers).
		Bool("dual", table.HasDualTables).
		Str("bill", table.BillID).
		Msg("Parsed member table")

	return table
}

// isHeader reports whether line is a qualifying member table header.
func isHeader(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, "congress member") &&
		(strings.Contains(lower, "chamber") || strings.Contains(lower, "party")) &&
		strings.Contains(lower, "involvement rank")
}

// countHeaders counts qualifying header lines.
func countHeaders(lines []string) int {
	n := 0
	for _, line := range lines {
		if isHeader(line) {
			n++
		}
	}
	return n
}

// isSeparator reports whether line is a markdown separator row such as |---|:--|.
func isSeparator(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	rest := strings.Map(func(r rune) rune {
		switch r {
		case '|', '-', ':', ' ', '\t':
			return -1
		}
		return r
	}, line)
	return rest == ""
}

// extractTables scans lines and returns the buffered lines of every table found.
func extractTables(lines []string) [][]string {
	var (
		tables [][]string
		buf    []string
		inside bool
	)

	flush := func() {
		if len(buf) > 0 {
			tables = append(tables, buf)
		}
		buf = nil
		inside = false
	}

	for _, line := range lines {
		if isHeader(line) {
			flush()
			inside = true
			buf = append(buf, line)
			continue
		}
		if !inside {
			continue
		}

		hasPipe := strings.Contains(line, "|")
		if hasPipe && (isSeparator(line) || strings.Count(line, "|") >= minRowPipes) {
			buf = append(buf, line)
			continue
		}

		if strings.TrimSpace(line) == "" {
			if len(buf) >= minTableLines {
				flush()
			}
			continue
		}
		if !hasPipe && len(buf) >= minTableLines {
			flush()
		}
	}
	flush()

	return tables
}

// parseRows turns the buffered lines of one table into members, skipping
// header, separator and unparseable rows.
func parseRows(lines []string) []models.CongressMember {
	members := make([]models.CongressMember, 0, len(lines))
	for _, line := range lines {
		if isHeader(line) || isSeparator(line) {
			continue
		}
		if m, ok := parseRow(line); ok {
			members = append(members, m)
		}
	}
	return members
}

// parseRow maps the cells of a data row positionally onto
// [name, chamber, state/district, rank, reason].
func parseRow(line string) (models.CongressMember, bool) {
	cells := splitCells(line)
	if len(cells) < 5 {
		return models.CongressMember{}, false
	}
	if strings.Contains(strings.ToLower(cells[0]), "congress member") {
		return models.CongressMember{}, false
	}

	rank, ok := parseRank(cells[3])
	if !ok {
		return models.CongressMember{}, false
	}

	name, party := ParseName(cells[0])
	if name == "" {
		return models.CongressMember{}, false
	}
	state, district := ParseStateDistrict(cells[2])

	return models.CongressMember{
		Name:     name,
		Chamber:  normalizeChamber(cells[1], district),
		Party:    party,
		State:    state,
		District: district,
		Rank:     rank,
		Reason:   cells[4],
	}, true
}

// splitCells splits a row on pipes and drops empty cells.
func splitCells(line string) []string {
	raw := strings.Split(line, "|")
	cells := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

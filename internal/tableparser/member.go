package tableparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/thebtf/lobbywatch/pkg/models"
)

var (
	// nameSuffixRe matches "Name (D)", "Name (R-WY)" and "Name (D-NY-14)".
	nameSuffixRe = regexp.MustCompile(`^(.*?)\s*\(([DRI])(?:-[A-Z]{2}(?:-\d+)?)?\)\s*$`)

	stateDistrictRe = regexp.MustCompile(`^([A-Z]{2})-(\d+|AL)$`)
	rankRe          = regexp.MustCompile(`\d+`)
)

// ExpandParty maps a one-letter party code to its full name.
func ExpandParty(code string) string {
	switch strings.ToUpper(code) {
	case "D":
		return "Democrat"
	case "R":
		return "Republican"
	case "I":
		return "Independent"
	default:
		return ""
	}
}

// ParseName splits "Joe Manchin (D)" into the name and the expanded party.
// Names without a recognized suffix return an empty party.
func ParseName(cell string) (name, party string) {
	cell = strings.TrimSpace(strings.Trim(strings.TrimSpace(cell), "*_"))
	m := nameSuffixRe.FindStringSubmatch(cell)
	if m == nil {
		return cell, ""
	}
	return strings.TrimSpace(m[1]), ExpandParty(m[2])
}

// ParseStateDistrict splits "MD-03" into state and district. A bare "TN"
// yields only a state; anything else is returned verbatim as the state.
func ParseStateDistrict(cell string) (state, district string) {
	cell = strings.TrimSpace(cell)
	if m := stateDistrictRe.FindStringSubmatch(cell); m != nil {
		return m[1], m[2]
	}
	return cell, ""
}

// parseRank extracts the first positive integer from a rank cell.
func parseRank(cell string) (int, bool) {
	m := rankRe.FindString(cell)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// normalizeChamber maps chamber cells such as "Sen." or "Representative" onto
// House/Senate. An empty cell is inferred from the presence of a district.
func normalizeChamber(cell, district string) string {
	lower := strings.ToLower(strings.TrimSpace(cell))
	switch {
	case strings.HasPrefix(lower, "sen"):
		return models.ChamberSenate
	case strings.HasPrefix(lower, "rep"), strings.HasPrefix(lower, "house"):
		return models.ChamberHouse
	case lower == "":
		if district != "" {
			return models.ChamberHouse
		}
		return models.ChamberSenate
	default:
		return strings.TrimSpace(cell)
	}
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

// Level is the depth of an identifier in the hierarchy.
type Level int

const (
	LevelInvalid Level = iota
	LevelRoot
	LevelProvince
	LevelRegency
	LevelDistrict
	LevelVillage
	LevelStation
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelProvince:
		return "province"
	case LevelRegency:
		return "regency"
	case LevelDistrict:
		return "district"
	case LevelVillage:
		return "village"
	case LevelStation:
		return "station"
	}
	return "invalid"
}

// Identifier boundary lengths, shortest first.
const (
	ProvinceLen = 2
	RegencyLen  = 4
	DistrictLen = 6
	VillageLen  = 10

	// A station id is the village id plus a 1-3 digit station number.
	MaxStationLen = VillageLen + 3
)

// ParentID returns id truncated to the longest boundary shorter than id,
// or "" for provinces and anything shorter.
func ParentID(id string) string {
	switch n := len(id); {
	case n > VillageLen:
		return id[:VillageLen]
	case n > DistrictLen:
		return id[:DistrictLen]
	case n > RegencyLen:
		return id[:RegencyLen]
	case n > ProvinceLen:
		return id[:ProvinceLen]
	}
	return ""
}

// ChildKey returns the suffix of id below parentID. It never panics: a
// parentID longer than id yields "".
func ChildKey(id, parentID string) string {
	if len(parentID) >= len(id) {
		return ""
	}
	return id[len(parentID):]
}

// LevelOf classifies id by its length only.
func LevelOf(id string) Level {
	switch n := len(id); {
	case n == 0:
		return LevelRoot
	case n == ProvinceLen:
		return LevelProvince
	case n == RegencyLen:
		return LevelRegency
	case n == DistrictLen:
		return LevelDistrict
	case n == VillageLen:
		return LevelVillage
	case n > VillageLen && n <= MaxStationLen:
		return LevelStation
	}
	return LevelInvalid
}

// ValidID reports whether id is all digits and has a known level.
func ValidID(id string) bool {
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return LevelOf(id) != LevelInvalid
}

// Path returns the ancestors of id from the province down to id itself,
// excluding the root.
func Path(id string) []string {
	var path []string
	for cur := id; cur != ""; cur = ParentID(cur) {
		path = append([]string{cur}, path...)
	}
	return path
}

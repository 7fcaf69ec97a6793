// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package hierarchy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/tally"
)

var ErrMalformed = errors.New("malformed hierarchy")

// Data is the serialized reference hierarchy.
type Data struct {
	// IDToName maps province, regency, district and village ids to names.
	IDToName map[string]string `json:"id2name"`

	// Stations maps a village id to [max, extBegin?, extEnd?]: stations are
	// numbered 1..max, plus extBegin..extEnd when present. A negative max
	// means a single station numbered -max (used abroad).
	Stations map[string][]int `json:"tps"`
}

// Hierarchy is the immutable reference data. It is safe for concurrent use.
type Hierarchy struct {
	names         map[string]string
	stations      map[string][]int
	electors      map[string][]int64
	children      map[string][]string
	villages      []string
	totalStations map[string]int64
	totalElectors map[string]int64
}

// Load reads the hierarchy blob and, when electorsPath is set, the
// per-village elector table.
func Load(hierarchyPath, electorsPath string) (*Hierarchy, error) {
	buf, err := os.ReadFile(hierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read hierarchy: %w", err)
	}
	var data Data
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("failed to parse hierarchy: %w", err)
	}

	var electors map[string][]int64
	if electorsPath != "" {
		buf, err := os.ReadFile(electorsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read electors: %w", err)
		}
		if err := json.Unmarshal(buf, &electors); err != nil {
			return nil, fmt.Errorf("failed to parse electors: %w", err)
		}
	}

	return New(data, electors)
}

// New indexes data. electors may be nil.
func New(data Data, electors map[string][]int64) (*Hierarchy, error) {
	h := &Hierarchy{
		names:         data.IDToName,
		stations:      data.Stations,
		electors:      electors,
		children:      map[string][]string{},
		totalStations: map[string]int64{},
		totalElectors: map[string]int64{},
	}
	if h.names == nil {
		h.names = map[string]string{}
	}
	if h.stations == nil {
		h.stations = map[string][]int{}
	}
	if err := h.indexChildren(); err != nil {
		return nil, err
	}
	h.total("")
	return h, nil
}

func (h *Hierarchy) indexChildren() error {
	sets := map[string]map[string]bool{"": {}}
	for id := range h.names {
		if len(id) != tally.VillageLen {
			continue
		}
		if !tally.ValidID(id) {
			return fmt.Errorf("%w: village id %q", ErrMalformed, id)
		}
		if len(h.stations[id]) == 0 {
			return fmt.Errorf("%w: village %q has no stations", ErrMalformed, id)
		}
		h.villages = append(h.villages, id)
		for child := id; child != ""; child = tally.ParentID(child) {
			parent := tally.ParentID(child)
			if _, ok := h.names[child]; !ok {
				return fmt.Errorf("%w: missing name for %q", ErrMalformed, child)
			}
			if sets[parent] == nil {
				sets[parent] = map[string]bool{}
			}
			sets[parent][tally.ChildKey(child, parent)] = true
		}
	}
	sort.Strings(h.villages)

	for id, set := range sets {
		suffixes := make([]string, 0, len(set))
		for s := range set {
			suffixes = append(suffixes, s)
		}
		sort.Slice(suffixes, func(i, j int) bool {
			ni, nj := h.names[id+suffixes[i]], h.names[id+suffixes[j]]
			if ni != nj {
				return ni < nj
			}
			return suffixes[i] < suffixes[j]
		})
		h.children[id] = suffixes
	}
	return nil
}

// total fills totalStations and totalElectors for id and everything below.
func (h *Hierarchy) total(id string) (int64, int64) {
	var stations, electors int64
	if tally.LevelOf(id) == tally.LevelVillage {
		stations = int64(len(h.StationKeys(id)))
		for _, n := range h.electors[id] {
			electors += n
		}
	} else {
		for _, suffix := range h.children[id] {
			s, e := h.total(id + suffix)
			stations += s
			electors += e
		}
	}
	h.totalStations[id] = stations
	h.totalElectors[id] = electors
	return stations, electors
}

// Has reports whether id is a known root, province, regency, district or village.
func (h *Hierarchy) Has(id string) bool {
	if id == "" {
		return true
	}
	_, ok := h.names[id]
	return ok
}

// HasStation reports whether stationID names a station of a known village.
func (h *Hierarchy) HasStation(stationID string) bool {
	if tally.LevelOf(stationID) != tally.LevelStation {
		return false
	}
	village := tally.ParentID(stationID)
	key := tally.ChildKey(stationID, village)
	for _, k := range h.StationKeys(village) {
		if k == key {
			return true
		}
	}
	return false
}

func (h *Hierarchy) Name(id string) string {
	return h.names[id]
}

// Names returns the display names from the province down to id's village.
func (h *Hierarchy) Names(id string) []string {
	names := []string{}
	for _, n := range []int{tally.ProvinceLen, tally.RegencyLen, tally.DistrictLen, tally.VillageLen} {
		if len(id) >= n {
			names = append(names, h.names[id[:n]])
		}
	}
	return names
}

// Children returns the child suffixes of id sorted by display name.
func (h *Hierarchy) Children(id string) []string {
	return h.children[id]
}

func (h *Hierarchy) Villages() []string {
	return h.villages
}

func (h *Hierarchy) TotalStations(id string) int64 {
	return h.totalStations[id]
}

func (h *Hierarchy) Electors(id string) int64 {
	return h.totalElectors[id]
}

// StationKeys lists the station numbers of a village in reference order.
func (h *Hierarchy) StationKeys(villageID string) []string {
	tps := h.stations[villageID]
	if len(tps) == 0 {
		return nil
	}
	if tps[0] < 0 {
		return []string{strconv.Itoa(-tps[0])}
	}
	keys := make([]string, 0, tps[0])
	for i := 1; i <= tps[0]; i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	if len(tps) >= 3 && tps[1] > 0 {
		for i := tps[1]; i <= tps[2]; i++ {
			keys = append(keys, strconv.Itoa(i))
		}
	}
	return keys
}

// stationElectors returns the elector count of the i-th station of a
// village, or 0 when unknown. Overseas villages have no table.
func (h *Hierarchy) stationElectors(villageID string, i int) int64 {
	if strings.HasPrefix(villageID, "99") {
		return 0
	}
	d := h.electors[villageID]
	if i < len(d) {
		return d[i]
	}
	return 0
}

// Pristine builds the zero-tally Location for id from reference data only.
// It returns false when id is not part of the hierarchy.
func (h *Hierarchy) Pristine(id string) (*models.Location, bool) {
	loc := &models.Location{
		ID:       id,
		Names:    h.Names(id),
		Children: map[string]*models.ChildTally{},
	}

	switch tally.LevelOf(id) {
	case tally.LevelVillage:
		keys := h.StationKeys(id)
		if keys == nil {
			return nil, false
		}
		for i, k := range keys {
			loc.Children[k] = &models.ChildTally{TallyRecord: models.TallyRecord{
				ID:            id + k,
				Name:          k,
				TotalStations: 1,
				Electors:      h.stationElectors(id, i),
			}}
		}
	case tally.LevelRoot, tally.LevelProvince, tally.LevelRegency, tally.LevelDistrict:
		suffixes, ok := h.children[id]
		if !ok {
			return nil, false
		}
		for _, s := range suffixes {
			cid := id + s
			loc.Children[s] = &models.ChildTally{TallyRecord: models.TallyRecord{
				ID:            cid,
				Name:          h.names[cid],
				TotalStations: h.totalStations[cid],
				Electors:      h.totalElectors[cid],
			}}
		}
	default:
		return nil, false
	}

	loc.Rollup = tally.Aggregate(loc)
	return loc, true
}

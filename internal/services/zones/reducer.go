package zones

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"TriggerDesk/internal/domain/models"
)

// Policy selects the reducer variant.
type Policy string

const (
	// PolicyContainment picks one active zone and only the shelves overlapping it.
	PolicyContainment Policy = "A"
	// PolicyWindow keeps strong zones near price plus the shelves in and between them.
	PolicyWindow Policy = "B"
)

const (
	DefaultWindowPts  = 40.0
	minWindowStrength = 90.0
	gapShelvesKept    = 2
)

// Input is everything the reducer needs; it performs no I/O.
type Input struct {
	Institutional []models.Zone
	Shelves       []models.Zone
	CurrentPrice  float64
	Timeframe     string
	WindowPts     float64
	Policy        Policy
}

// ParsePolicy accepts "A"/"B" in any case and defaults to containment.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyWindow)) {
		return PolicyWindow
	}
	return PolicyContainment
}

// tracker records which inputs were emitted so the rest land in suppressed.
type tracker struct {
	used map[int]bool
	keys map[string]bool
}

func newTracker() *tracker {
	return &tracker{used: map[int]bool{}, keys: map[string]bool{}}
}

// take marks idx as emitted unless it or its stable key was already taken.
func (t *tracker) take(idx int, z models.Zone) bool {
	if t.used[idx] {
		return false
	}
	k := StableKey(z)
	if t.keys[k] {
		return false
	}
	t.used[idx] = true
	t.keys[k] = true
	return true
}

func (t *tracker) rest(all []models.Zone) []models.Zone {
	out := make([]models.Zone, 0, len(all))
	for i, z := range all {
		if !t.used[i] {
			out = append(out, z)
		}
	}
	return out
}

type indexed struct {
	idx int
	z   models.Zone
}

// Reduce selects the active zone and the renderable levels for a timeframe and price.
func Reduce(in Input) (models.ActiveZoneSelection, error) {
	if strings.TrimSpace(in.Timeframe) == "" {
		return models.ActiveZoneSelection{}, fmt.Errorf("%w: timeframe is required", models.ErrInvalidInput)
	}
	if math.IsNaN(in.CurrentPrice) || math.IsInf(in.CurrentPrice, 0) {
		return models.ActiveZoneSelection{}, fmt.Errorf("%w: currentPrice must be finite", models.ErrInvalidInput)
	}
	policy := in.Policy
	if policy == "" {
		policy = PolicyContainment
	}
	window := in.WindowPts
	if window <= 0 {
		window = DefaultWindowPts
	}
	tfUsed := RequestTimeframe(in.Timeframe)

	zoneT, shelfT := newTracker(), newTracker()
	inst := matchTF(in.Institutional, tfUsed)
	shelves := matchTF(in.Shelves, tfUsed)

	var active *models.Zone
	var renderInst, renderShelves []models.Zone
	switch policy {
	case PolicyWindow:
		active, renderInst, renderShelves = reduceWindow(inst, shelves, in.CurrentPrice, window, zoneT, shelfT)
	default:
		active, renderInst, renderShelves = reduceContainment(inst, shelves, in.CurrentPrice, zoneT, shelfT)
	}

	if active != nil {
		a := *active
		a.Extra = nil
		active = &a
	}
	sel := models.ActiveZoneSelection{
		OK:     true,
		Active: active,
		Render: models.ZoneGroup{
			Institutional: stripExtra(renderInst),
			Shelves:       stripExtra(renderShelves),
		},
		Suppressed: models.ZoneGroup{
			Institutional: zoneT.rest(in.Institutional),
			Shelves:       shelfT.rest(in.Shelves),
		},
		Meta: &models.SelectionMeta{
			TFInput:      in.Timeframe,
			TFUsed:       tfUsed,
			CurrentPrice: in.CurrentPrice,
			Policy:       string(policy),
		},
	}
	if policy == PolicyWindow {
		sel.Meta.WindowPts = window
	}
	return sel, nil
}

// stripExtra copies zs without the unknown upstream fields; those stay in suppressed only.
func stripExtra(zs []models.Zone) []models.Zone {
	out := make([]models.Zone, len(zs))
	for i, z := range zs {
		z.Extra = nil
		out[i] = z
	}
	return out
}

func nonNil(zs []models.Zone) []models.Zone {
	if zs == nil {
		return []models.Zone{}
	}
	return zs
}

// matchTF keeps finite zones whose timeframe matches; an empty zone timeframe matches all.
func matchTF(all []models.Zone, tf string) []indexed {
	out := make([]indexed, 0, len(all))
	for i, z := range all {
		if !z.Finite() || z.Hi < z.Lo {
			continue
		}
		if z.Timeframe != "" && canonicalTF(z.Timeframe) != tf {
			continue
		}
		out = append(out, indexed{idx: i, z: z})
	}
	return out
}

// pickActive implements containment-first selection with a support bias.
func pickActive(cands []indexed, price float64) (indexed, bool) {
	var containing, below, above []indexed
	for _, c := range cands {
		switch {
		case c.z.Contains(price):
			containing = append(containing, c)
		case c.z.Hi < price:
			below = append(below, c)
		default:
			above = append(above, c)
		}
	}
	if len(containing) > 0 {
		sort.SliceStable(containing, func(i, j int) bool {
			a, b := containing[i].z, containing[j].z
			if a.Strength != b.Strength {
				return a.Strength > b.Strength
			}
			return math.Abs(a.Mid()-price) < math.Abs(b.Mid()-price)
		})
		return containing[0], true
	}
	for _, group := range [][]indexed{below, above} {
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].z, group[j].z
			da, db := a.EdgeDistance(price), b.EdgeDistance(price)
			if da != db {
				return da < db
			}
			if a.Strength != b.Strength {
				return a.Strength > b.Strength
			}
			return a.Width() < b.Width()
		})
		return group[0], true
	}
	return indexed{}, false
}

func reduceContainment(inst, shelves []indexed, price float64, zoneT, shelfT *tracker) (*models.Zone, []models.Zone, []models.Zone) {
	best, ok := pickActive(inst, price)
	if !ok {
		return nil, nil, nil
	}
	zoneT.take(best.idx, best.z)
	active := best.z

	var acc, dist []indexed
	for _, s := range shelves {
		if !active.Overlaps(s.z.Lo, s.z.Hi) {
			continue
		}
		switch shelfKind(s.z) {
		case models.KindAccumulation:
			acc = append(acc, s)
		case models.KindDistribution:
			dist = append(dist, s)
		}
	}
	var out []models.Zone
	for _, group := range [][]indexed{acc, dist} {
		sortShelves(group, price)
		for _, s := range group {
			if shelfT.take(s.idx, s.z) {
				out = append(out, s.z)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Lo < out[j].Lo })
	return &active, []models.Zone{active}, out
}

// shelfKind folds SHELF+side onto accumulation/distribution.
func shelfKind(z models.Zone) models.ZoneKind {
	switch z.Kind {
	case models.KindAccumulation, models.KindDistribution:
		return z.Kind
	}
	if strings.EqualFold(string(z.Kind), string(models.KindAccumulation)) {
		return models.KindAccumulation
	}
	if strings.EqualFold(string(z.Kind), string(models.KindDistribution)) {
		return models.KindDistribution
	}
	if z.Kind == models.KindShelf {
		if z.Side == models.SideSupply {
			return models.KindDistribution
		}
		return models.KindAccumulation
	}
	return ""
}

// sortShelves orders by edge distance, strength, side preference, then width.
func sortShelves(group []indexed, price float64) {
	pref := func(z models.Zone) int {
		k := shelfKind(z)
		if (k == models.KindAccumulation && z.Mid() <= price) || (k == models.KindDistribution && z.Mid() >= price) {
			return 0
		}
		return 1
	}
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i].z, group[j].z
		if da, db := a.EdgeDistance(price), b.EdgeDistance(price); da != db {
			return da < db
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if pa, pb := pref(a), pref(b); pa != pb {
			return pa < pb
		}
		return a.Width() < b.Width()
	})
}

func reduceWindow(inst, shelves []indexed, price, window float64, zoneT, shelfT *tracker) (*models.Zone, []models.Zone, []models.Zone) {
	lo, hi := price-window, price+window
	var kept []indexed
	for _, c := range inst {
		if c.z.Strength < minWindowStrength || c.z.Strength > 100 {
			continue
		}
		if !c.z.Overlaps(lo, hi) {
			continue
		}
		if zoneT.take(c.idx, c.z) {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].z.Lo != kept[j].z.Lo {
			return kept[i].z.Lo < kept[j].z.Lo
		}
		return kept[i].z.Hi < kept[j].z.Hi
	})

	var renderShelves []models.Zone
	emit := func(cands []indexed, limit int) {
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].z.Strength > cands[j].z.Strength })
		n := 0
		for _, s := range cands {
			if n >= limit {
				return
			}
			if shelfT.take(s.idx, s.z) {
				renderShelves = append(renderShelves, s.z)
				n++
			}
		}
	}
	for i := 0; i+1 < len(kept); i++ {
		gapLo, gapHi := kept[i].z.Hi, kept[i+1].z.Lo
		if gapHi <= gapLo {
			continue
		}
		var in []indexed
		for _, s := range shelves {
			if s.z.Lo >= gapLo && s.z.Hi <= gapHi {
				in = append(in, s)
			}
		}
		emit(in, gapShelvesKept)
	}
	for _, k := range kept {
		var in []indexed
		for _, s := range shelves {
			if s.z.Lo >= k.z.Lo && s.z.Hi <= k.z.Hi {
				in = append(in, s)
			}
		}
		emit(in, 1)
	}
	sort.SliceStable(renderShelves, func(i, j int) bool { return renderShelves[i].Lo < renderShelves[j].Lo })

	render := make([]models.Zone, 0, len(kept))
	for _, k := range kept {
		render = append(render, k.z)
	}
	var active *models.Zone
	if best, ok := pickActive(kept, price); ok {
		z := best.z
		active = &z
	}
	return active, render, renderShelves
}

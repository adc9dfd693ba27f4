package projections

import "onchainsummer/internal/domain/schedule"

// DropSelection splits a partner's drops into the headline drop and the rest.
type DropSelection struct {
	Featured  *schedule.Drop
	Remaining []schedule.Drop
}

// SelectDrops promotes the drop whose address is featuredAddress to the
// headline, falling back to the first drop when the address is empty or
// unknown. Remaining keeps the original order minus the featured drop.
// PRE: drop addresses are unique within drops
// POST: drops is not mutated; len(Remaining) == len(drops) minus one if Featured is set
func SelectDrops(drops []schedule.Drop, featuredAddress string) DropSelection {
	if len(drops) == 0 {
		return DropSelection{Remaining: []schedule.Drop{}}
	}

	idx := 0
	if featuredAddress != "" {
		for i := range drops {
			if drops[i].Address == featuredAddress {
				idx = i
				break
			}
		}
	}

	featured := drops[idx]
	remaining := make([]schedule.Drop, 0, len(drops)-1)
	remaining = append(remaining, drops[:idx]...)
	remaining = append(remaining, drops[idx+1:]...)
	return DropSelection{Featured: &featured, Remaining: remaining}
}

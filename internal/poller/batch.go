// internal/poller/batch.go
package poller

import (
	"sort"

	"github.com/tamzrod/sdm-poller/internal/poller/modbus"
	"github.com/tamzrod/sdm-poller/internal/register"
)

// BuildBatches groups specs into the fewest contiguous reads per function.
// A spec joins the current batch when it has the same function and starts
// inside or right after the covered range. Adjacent specs that would push a
// batch past MaxReadQuantity start a new one; overlapping specs always join.
func BuildBatches(specs []register.Spec) []Batch {
	if len(specs) == 0 {
		return nil
	}

	sorted := make([]register.Spec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Function != b.Function {
			return a.Function < b.Function
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		return a.Key < b.Key
	})

	var out []Batch
	for _, s := range sorted {
		if n := len(out); n > 0 {
			b := &out[n-1]
			start := uint32(s.Address)
			if b.Function == s.Function && start <= b.End() {
				end := max(b.End(), s.End())
				if start < b.End() || end-uint32(b.Start) <= modbus.MaxReadQuantity {
					b.Length = uint16(end - uint32(b.Start))
					b.Specs = append(b.Specs, s)
					continue
				}
			}
		}
		out = append(out, Batch{
			Function: s.Function,
			Start:    s.Address,
			Length:   s.Length,
			Specs:    []register.Spec{s},
		})
	}
	return out
}

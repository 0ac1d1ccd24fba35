package usage

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// LoadReport reads a saved token usage report. Reports saved without key
// order get it back from the history, in first-seen order.
func LoadReport(path string) (Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Report{}, errors.Wrapf(err, "failed to read %s", path)
	}
	var ret Report
	if err := json.Unmarshal(b, &ret); err != nil {
		return Report{}, errors.Wrapf(err, "%s is not a token usage report", path)
	}
	ret.restoreOrder()
	return ret, nil
}

func (r *Report) restoreOrder() {
	if len(r.Models) != len(r.ByModel) {
		seen := map[string]bool{}
		r.Models = []string{}
		for _, h := range r.History {
			if _, ok := r.ByModel[h.Model]; ok && !seen[h.Model] {
				seen[h.Model] = true
				r.Models = append(r.Models, h.Model)
			}
		}
		rest := []string{}
		for m := range r.ByModel {
			if !seen[m] {
				rest = append(rest, m)
			}
		}
		sort.Strings(rest)
		r.Models = append(r.Models, rest...)
	}

	if len(r.Operations) != len(r.ByOperation) {
		seen := map[Operation]bool{}
		r.Operations = []Operation{}
		for _, h := range r.History {
			if _, ok := r.ByOperation[h.Operation]; ok && !seen[h.Operation] {
				seen[h.Operation] = true
				r.Operations = append(r.Operations, h.Operation)
			}
		}
		rest := []Operation{}
		for o := range r.ByOperation {
			if !seen[o] {
				rest = append(rest, o)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
		r.Operations = append(r.Operations, rest...)
	}
}

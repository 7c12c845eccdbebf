package task

import (
	"job-harvester/internal/domain/harvest"
)

// StreamStats reports what a StreamJobs call did to a result's job list.
type StreamStats struct {
	Added   int
	Updated int
	Total   int
}

// InitResultPlaceholder appends a running result for url so observers see the
// source before extraction finishes. A url that already has a result is left
// untouched.
func (r *Registry) InitResultPlaceholder(id string, url string) error {
	return r.mutate(id, EventResult, false, func(t *harvest.Task) error {
		if indexOfResult(t, url) >= 0 {
			return nil
		}
		if len(t.Results) >= t.Total {
			return ErrResultOverflow
		}
		t.Results = append(t.Results, harvest.Result{
			URL:      url,
			Status:   harvest.ResultRunning,
			Platform: harvest.PendingPlatform,
			Jobs:     make([]harvest.Job, 0),
		})
		t.Progress = len(t.Results)
		return nil
	})
}

// MergeResult appends partial when no result shares its url, otherwise it
// overwrites the existing result field by field. Zero-valued fields on
// partial leave the existing value alone.
func (r *Registry) MergeResult(id string, partial harvest.Result) error {
	return r.mutate(id, EventResult, false, func(t *harvest.Task) error {
		idx := indexOfResult(t, partial.URL)
		if idx < 0 {
			if len(t.Results) >= t.Total {
				return ErrResultOverflow
			}
			res := partial.Clone()
			if res.Jobs == nil {
				res.Jobs = make([]harvest.Job, 0)
			}
			t.Results = append(t.Results, res)
			t.Progress = len(t.Results)
			return nil
		}
		mergeResultFields(&t.Results[idx], partial)
		return nil
	})
}

// StreamJobs folds jobs into the result for url using the link as identity.
// Known links are updated in place and keep their position; new ones are
// appended in arrival order. Jobs without a link are always appended.
func (r *Registry) StreamJobs(id string, url string, jobs []harvest.Job, stats map[string]any) (StreamStats, error) {
	var out StreamStats
	err := r.mutate(id, EventJobs, false, func(t *harvest.Task) error {
		idx := indexOfResult(t, url)
		if idx < 0 {
			return ErrResultNotFound
		}
		res := &t.Results[idx]

		byLink := make(map[string]int, len(res.Jobs))
		for i, j := range res.Jobs {
			if k := j.Key(); k != "" {
				byLink[k] = i
			}
		}
		for _, j := range jobs {
			k := j.Key()
			if pos, ok := byLink[k]; ok && k != "" {
				res.Jobs[pos].Merge(j)
				out.Updated++
				continue
			}
			res.Jobs = append(res.Jobs, j)
			if k != "" {
				byLink[k] = len(res.Jobs) - 1
			}
			out.Added++
		}

		if stats != nil {
			res.Stats = copyStats(stats)
		}
		res.TotalFound = len(res.Jobs)
		out.Total = res.TotalFound
		return nil
	})
	return out, err
}

func mergeResultFields(dst *harvest.Result, src harvest.Result) {
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Platform != "" {
		dst.Platform = src.Platform
	}
	if src.Jobs != nil {
		dst.Jobs = make([]harvest.Job, len(src.Jobs))
		copy(dst.Jobs, src.Jobs)
	}
	if src.TotalFound != 0 {
		dst.TotalFound = src.TotalFound
	}
	if src.FilteredCount != 0 {
		dst.FilteredCount = src.FilteredCount
	}
	if src.Stats != nil {
		dst.Stats = copyStats(src.Stats)
	}
	if src.Error != "" {
		dst.Error = src.Error
	}
}

func indexOfResult(t *harvest.Task, url string) int {
	for i := range t.Results {
		if t.Results[i].URL == url {
			return i
		}
	}
	return -1
}

func copyStats(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

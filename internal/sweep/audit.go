package sweep

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/franz/track-index/internal/match"
	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/util"
)

// AuditResult tallies which tier finds each missing item
type AuditResult struct {
	Checked int
	Tallies map[string]int // Keyed by match method; "none" is truly missing
	Removed int            // False positives deleted from the registry
}

// FalsePositives returns how many missing items were actually present
func (r *AuditResult) FalsePositives() int {
	return r.Checked - r.Tallies[string(match.MethodNone)]
}

// Audit runs the full verification over every missing item and tallies the
// tier that found it. With remove set, items found by any tier are deleted
// from the registry.
func (s *Sweeper) Audit(ctx context.Context, remove bool) (*AuditResult, error) {
	const job = "audit"
	start := time.Now()
	s.events.LogRunStart(job)

	items, err := s.registry.List(ctx, registry.StatusMissing)
	if err != nil {
		s.endRun(job, start, nil, err)
		return nil, fmt.Errorf("failed to list missing items: %w", err)
	}
	util.InfoLog("Auditing %d missing items", len(items))

	result := &AuditResult{Tallies: make(map[string]int)}
	var mu sync.Mutex

	bar := util.NewProgressBar(int64(len(items)), "Auditing", "items")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			v := s.engine.Verify(gctx, item.Title, item.Artist)
			s.events.LogVerify(item.ID, item.Title, item.Artist, string(v.Method), v.Exists)

			removed := false
			if v.Exists && remove {
				if err := s.registry.Delete(gctx, item.ID); err != nil {
					util.ErrorLog("Failed to remove %q - %q: %v", item.Title, item.Artist, err)
					s.events.LogError(job, item.ID, err)
				} else {
					removed = true
				}
			}
			if v.Exists {
				util.InfoLog("False positive (%s): %q - %q", v.Method, item.Title, item.Artist)
			}

			mu.Lock()
			result.Checked++
			result.Tallies[string(v.Method)]++
			if removed {
				result.Removed++
			}
			mu.Unlock()

			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	if bar != nil {
		bar.Finish()
	}

	s.events.LogAudit(result.Tallies)
	counters := map[string]int{"checked": result.Checked, "removed": result.Removed}
	for method, n := range result.Tallies {
		counters[method] = n
	}
	s.endRun(job, start, counters, err)

	if err != nil {
		return result, err
	}

	util.SuccessLog("Audit complete: %d checked, %d false positives (exact %d, smart %d, filesystem %d), %d truly missing",
		result.Checked, result.FalsePositives(),
		result.Tallies[string(match.MethodExact)],
		result.Tallies[string(match.MethodSmart)],
		result.Tallies[string(match.MethodFilesystem)],
		result.Tallies[string(match.MethodNone)])
	return result, nil
}

// Comparison is the outcome of CompareTiers
type Comparison struct {
	Sampled      int
	ExactMatches int
	SmartMatches int
	Improvements []registry.Item // Found by smart but not by exact
}

// CompareTiers measures how many of a random sample of missing items the
// exact and smart strategies find. sample <= 0 checks every item.
func (s *Sweeper) CompareTiers(ctx context.Context, sample int) (*Comparison, error) {
	items, err := s.registry.List(ctx, registry.StatusMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing items: %w", err)
	}

	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	if sample > 0 && len(items) > sample {
		items = items[:sample]
	}

	cmp := &Comparison{}
	for i, item := range items {
		if i%checkEvery == 0 && ctx.Err() != nil {
			return cmp, ctx.Err()
		}
		cmp.Sampled++

		exact := s.engine.Exact(ctx, item.Title, item.Artist)
		smart := s.engine.Smart(ctx, item.Title, item.Artist)
		if exact {
			cmp.ExactMatches++
		}
		if smart {
			cmp.SmartMatches++
		}
		if smart && !exact {
			cmp.Improvements = append(cmp.Improvements, item)
		}
	}

	if cmp.Sampled > 0 {
		util.InfoLog("Tier comparison over %d items: exact %d (%.1f%%), smart %d (%.1f%%), +%d",
			cmp.Sampled,
			cmp.ExactMatches, percent(cmp.ExactMatches, cmp.Sampled),
			cmp.SmartMatches, percent(cmp.SmartMatches, cmp.Sampled),
			len(cmp.Improvements))
	}
	return cmp, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// CleanResolved removes downloaded and manually resolved items
func (s *Sweeper) CleanResolved(ctx context.Context) (removed, remaining int64, err error) {
	removed, remaining, err = s.registry.CleanResolved(ctx)
	if err == nil {
		s.events.LogClean("clean-resolved", removed)
	}
	return removed, remaining, err
}

// CleanInvalid removes protected-context and TV/film items; nil keywords
// uses the registry defaults
func (s *Sweeper) CleanInvalid(ctx context.Context, keywords []string) (int64, error) {
	removed, err := s.registry.CleanInvalid(ctx, keywords)
	if err == nil {
		s.events.LogClean("clean-invalid", removed)
	}
	return removed, err
}

package scraper

type Selector struct {
	strategies []Strategy
	fallback   Strategy
}

// NewSelector tries strategies in order and falls back to fallback.
func NewSelector(fallback Strategy, strategies ...Strategy) *Selector {
	return &Selector{strategies: strategies, fallback: fallback}
}

// NewDefaultSelector wires the built-in strategies in priority order.
func NewDefaultSelector(opts Options) *Selector {
	opts = opts.withDefaults()
	return NewSelector(
		NewGenericStrategy(opts),
		NewBambooHRStrategy(opts),
		NewWorkingNomadsStrategy(opts),
		NewGreenhouseStrategy(opts),
		NewAshbyStrategy(opts),
	)
}

func (s *Selector) Select(url string) Strategy {
	for _, st := range s.strategies {
		if st.CanHandle(url) {
			return st
		}
	}
	return s.fallback
}

// Platform is the label shown for url, also for sources that are skipped
// before extraction.
func (s *Selector) Platform(url string) string {
	st := s.Select(url)
	if st == nil {
		return DomainLabel(url)
	}
	if st == s.fallback {
		return DomainLabel(url)
	}
	return st.Name()
}

type PlanEntry struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
	Platform string `json:"platform"`
}

func (s *Selector) Plan(urls []string) []PlanEntry {
	out := make([]PlanEntry, 0, len(urls))
	for _, u := range urls {
		name := ""
		if st := s.Select(u); st != nil {
			name = st.Name()
		}
		out = append(out, PlanEntry{URL: u, Strategy: name, Platform: s.Platform(u)})
	}
	return out
}

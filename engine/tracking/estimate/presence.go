package estimate

// Presence debounces a per-frame found/not-found signal. A target is shown after
// Warmup consecutive hits and hidden after Miss consecutive misses. Tolerances below
// one are treated as one.
type Presence struct {
	Warmup int
	Miss   int

	hits   int
	misses int
	shown  bool
}

// Hit records a detection and reports whether the target just became shown.
func (p *Presence) Hit() bool {
	p.misses = 0
	if p.shown {
		return false
	}
	p.hits++
	if p.hits >= max(p.Warmup, 1) {
		p.shown = true
		p.hits = 0
		return true
	}
	return false
}

// Miss records a failed detection and reports whether the target just became hidden.
func (p *Presence) Miss() bool {
	p.hits = 0
	if !p.shown {
		return false
	}
	p.misses++
	if p.misses >= max(p.Miss, 1) {
		p.shown = false
		p.misses = 0
		return true
	}
	return false
}

func (p *Presence) Shown() bool {
	return p.shown
}

func (p *Presence) Reset() {
	p.hits, p.misses, p.shown = 0, 0, false
}

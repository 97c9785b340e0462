package transfer

const noDecile = -1

// progressState lives for one transfer. lastDecile starts below zero so the
// 0% milestone can be reported once.
type progressState struct {
	written    int64
	total      int64
	lastDecile int
}

func newProgressState(offset, total int64) *progressState {
	return &progressState{written: offset, total: total, lastDecile: noDecile}
}

func decileOf(written, total int64) int {
	if total <= 0 {
		return 10
	}
	percent := written * 100 / total
	return int(min(max(percent/10, 0), 10))
}

// advance adds n bytes and reports whether a new decile was crossed.
func (p *progressState) advance(n int64) (int, bool) {
	p.written += n
	decile := decileOf(p.written, p.total)
	if decile > p.lastDecile {
		p.lastDecile = decile
		return decile, true
	}
	return decile, false
}

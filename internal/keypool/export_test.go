package keypool

import "time"

// SetNowFunc overrides the pool clock for tests.
func (p *Pool) SetNowFunc(now func() time.Time) {
	p.now = now
}

package engine

import (
	"fmt"
	"sync/atomic"
)

// Stats counts engine activity since Open.
type Stats struct {
	Launches        uint64
	BytesUploaded   uint64
	BytesDownloaded uint64
	// LiveBuffers is the number of buffers allocated and not yet freed.
	LiveBuffers int64
}

type counters struct {
	launches   atomic.Uint64
	uploaded   atomic.Uint64
	downloaded atomic.Uint64
	live       atomic.Int64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Launches:        e.stats.launches.Load(),
		BytesUploaded:   e.stats.uploaded.Load(),
		BytesDownloaded: e.stats.downloaded.Load(),
		LiveBuffers:     e.stats.live.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("launches=%d uploaded=%dB downloaded=%dB live=%d",
		s.Launches, s.BytesUploaded, s.BytesDownloaded, s.LiveBuffers)
}

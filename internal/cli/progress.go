package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/glorpus-work/crxget/internal/logger"
	"github.com/glorpus-work/crxget/pkg/orchestrator"
)

// progressPrinter renders orchestrator events. In single mode it redraws one download
// line; in batch mode it prints one line per finished extension.
type progressPrinter struct {
	w      io.Writer
	single bool
	total  int

	mu       sync.Mutex
	finished int
	lastPct  int
	drawing  bool
}

func newProgressPrinter(w io.Writer, total int) *progressPrinter {
	return &progressPrinter{w: w, single: total == 1, total: total, lastPct: -1}
}

// Hooks returns orchestrator hooks feeding this printer.
func (p *progressPrinter) Hooks() orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: p.handle}
}

func (p *progressPrinter) handle(e orchestrator.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Phase {
	case orchestrator.PhaseDownloading:
		if p.single && e.Read > 0 {
			p.drawDownload(e)
		}
	case orchestrator.PhaseDone, orchestrator.PhaseUnavailable, orchestrator.PhaseError:
		p.endLine()
		if !p.single {
			p.finished++
			_, _ = fmt.Fprintf(p.w, "[%d/%d] %s: %s\n", p.finished, p.total, e.ID, e.Phase)
		}
	default:
		logger.DebugfWithFields(logger.Fields{"id": e.ID}, "Phase %s %s", e.Phase, e.Msg)
	}
}

func (p *progressPrinter) drawDownload(e orchestrator.Event) {
	if e.Total <= 0 {
		_, _ = fmt.Fprintf(p.w, "\rDownloading %s: %s", e.ID, humanize.IBytes(uint64(e.Read)))
		p.drawing = true
		return
	}
	pct := int(e.Read * percentScale / e.Total)
	if pct == p.lastPct {
		return
	}
	p.lastPct = pct
	_, _ = fmt.Fprintf(p.w, "\rDownloading %s: %3d%% (%s / %s)", e.ID, pct,
		humanize.IBytes(uint64(e.Read)), humanize.IBytes(uint64(e.Total)))
	p.drawing = true
}

func (p *progressPrinter) endLine() {
	if p.drawing {
		_, _ = fmt.Fprintln(p.w)
		p.drawing = false
	}
	p.lastPct = -1
}

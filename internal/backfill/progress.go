package backfill

import (
	"io"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Progress receives a callback after every processed row.
type Progress interface {
	Row(pos, total int, s Summary)
	Done(s Summary)
}

// logProgress logs a progress line every n rows and on the final row.
type logProgress struct {
	every int
	log   *zap.Logger
}

func (p *logProgress) Row(pos, total int, s Summary) {
	if pos%p.every != 0 && pos != total {
		return
	}
	p.log.Info("progress",
		zap.Int("processed", pos),
		zap.Int("total", total),
		zap.Int("updated", s.Updated),
	)
}

func (p *logProgress) Done(Summary) {}

// BarProgress renders a terminal progress bar. The bar is sized on the first
// row, once the total is known.
type BarProgress struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarProgress creates a BarProgress writing to w.
func NewBarProgress(w io.Writer) *BarProgress {
	return &BarProgress{w: w}
}

// Row advances the bar by one.
func (p *BarProgress) Row(_, total int, _ Summary) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Geocoding listings"),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Add(1)
}

// Done finishes the bar.
func (p *BarProgress) Done(Summary) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

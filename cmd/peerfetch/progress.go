package main

import (
	"strconv"

	"github.com/gosuri/uiprogress"
)

// progressBar renders download progress. The bar is created lazily once the
// total number of pieces is known.
type progressBar struct {
	bar   *uiprogress.Bar
	total int
}

func (p *progressBar) OnPiece(done, total int) {
	if p.bar == nil {
		p.total = total

		uiprogress.Start()
		p.bar = uiprogress.AddBar(total)
		p.bar.AppendCompleted()
		p.bar.AppendFunc(func(b *uiprogress.Bar) string {
			return "pieces: " + strconv.Itoa(b.Current()) + "/" + strconv.Itoa(p.total)
		})
		p.bar.AppendElapsed()
	}

	p.bar.Set(done)
}

func (p *progressBar) Stop() {
	if p.bar != nil {
		uiprogress.Stop()
	}
}

//go:build gui

package gui

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"murmur/overlay"
)

const (
	pillWidth  = 220
	pillHeight = 44
	dotSize    = 14
	barWidth   = 6
	barGap     = 3
	barMax     = 26
	barMin     = 2
)

var (
	pillColor  = color.RGBA{18, 18, 18, 230}
	labelColor = color.RGBA{200, 200, 200, 255}
)

// Indicator draws one overlay frame as a pill: a pulsing dot in the theme
// color, the level bars and the state label.
type Indicator struct {
	widget.BaseWidget
	mu    sync.Mutex
	frame overlay.Frame
}

func NewIndicator() *Indicator {
	i := &Indicator{frame: overlay.Frame{State: overlay.Hidden}}
	i.ExtendBaseWidget(i)
	return i
}

// SetFrame stores f; callers refresh on the fyne thread.
func (i *Indicator) SetFrame(f overlay.Frame) {
	i.mu.Lock()
	i.frame = f
	i.mu.Unlock()
}

func (i *Indicator) current() overlay.Frame {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.frame
}

func (i *Indicator) MinSize() fyne.Size {
	return fyne.NewSize(pillWidth, pillHeight)
}

func (i *Indicator) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(pillColor)
	bg.CornerRadius = pillHeight / 2
	r := &indicatorRenderer{
		ind:   i,
		bg:    bg,
		dot:   canvas.NewCircle(color.Transparent),
		label: canvas.NewText("", labelColor),
		bars:  make([]*canvas.Rectangle, overlay.DefaultBars),
	}
	r.label.TextSize = 12
	for n := range r.bars {
		r.bars[n] = canvas.NewRectangle(color.Transparent)
		r.bars[n].CornerRadius = barWidth / 2
	}
	return r
}

type indicatorRenderer struct {
	ind   *Indicator
	size  fyne.Size
	bg    *canvas.Rectangle
	dot   *canvas.Circle
	label *canvas.Text
	bars  []*canvas.Rectangle
}

func (r *indicatorRenderer) Layout(size fyne.Size) {
	r.size = size
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	r.dot.Resize(fyne.NewSize(dotSize, dotSize))
	r.dot.Move(fyne.NewPos(16, (size.Height-dotSize)/2))

	r.layoutBars(r.ind.current())

	r.label.Move(fyne.NewPos(size.Width-70, (size.Height-r.label.MinSize().Height)/2))
}

func (r *indicatorRenderer) layoutBars(f overlay.Frame) {
	x := float32(16 + dotSize + 12)
	for n, bar := range r.bars {
		v := 0.0
		if n < len(f.Bars) {
			v = f.Bars[n]
		}
		h := float32(barMin) + float32(v)*(barMax-barMin)
		if h > barMax {
			h = barMax
		}
		bar.Resize(fyne.NewSize(barWidth, h))
		bar.Move(fyne.NewPos(x, (r.size.Height-h)/2))
		x += barWidth + barGap
	}
}

func (r *indicatorRenderer) MinSize() fyne.Size {
	return r.ind.MinSize()
}

func (r *indicatorRenderer) Refresh() {
	f := r.ind.current()
	c := f.Theme.Color

	if f.Visible {
		r.dot.FillColor = c
	} else {
		r.dot.FillColor = color.RGBA{c.R / 4, c.G / 4, c.B / 4, 255}
	}
	for _, bar := range r.bars {
		bar.FillColor = c
	}
	r.label.Text = f.Theme.Label
	if f.State == overlay.Recording && f.Idle {
		r.label.Text = "no voice"
	}
	r.layoutBars(f)

	r.dot.Refresh()
	r.label.Refresh()
	for _, bar := range r.bars {
		bar.Refresh()
	}
}

func (r *indicatorRenderer) Objects() []fyne.CanvasObject {
	objs := []fyne.CanvasObject{r.bg, r.dot, r.label}
	for _, bar := range r.bars {
		objs = append(objs, bar)
	}
	return objs
}

func (r *indicatorRenderer) Destroy() {}

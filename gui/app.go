//go:build gui

// Package gui shows the overlay as a small frameless window near the bottom
// of the screen, plus a tray icon.
package gui

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"github.com/go-gl/glfw/v3.3/glfw"

	"murmur/overlay"
)

type App struct {
	fyneApp   fyne.App
	window    fyne.Window
	indicator *Indicator
	onReady   func()
	posX      int
	posY      int

	mu       sync.Mutex
	shown    bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewApp(onReady func()) *App {
	return &App{onReady: onReady, done: make(chan struct{})}
}

// Done is closed when the user quits from the tray.
func (a *App) Done() <-chan struct{} {
	return a.done
}

func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.murmur.overlay")
	a.fyneApp.Settings().SetTheme(&darkTheme{})

	if desk, ok := a.fyneApp.(desktop.App); ok {
		icon := fyne.NewStaticResource("tray.png", trayIcon())
		menu := fyne.NewMenu("murmur",
			fyne.NewMenuItem("Quit", func() {
				a.doneOnce.Do(func() { close(a.done) })
			}),
		)
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(icon)
	}

	var screenW, screenH int
	if monitor := glfw.GetPrimaryMonitor(); monitor != nil {
		_, _, screenW, screenH = monitor.GetWorkarea()
	} else {
		screenW, screenH = 1920, 1080
	}

	if drv, ok := a.fyneApp.Driver().(desktop.Driver); ok {
		a.window = drv.CreateSplashWindow()
	} else {
		a.window = a.fyneApp.NewWindow("murmur")
	}

	a.indicator = NewIndicator()
	a.window.SetContent(a.indicator)
	a.window.SetFixedSize(true)
	a.window.SetPadded(false)

	size := a.indicator.MinSize()
	a.window.Resize(size)

	// Bottom center, clear of the dock.
	a.posX = (screenW - int(size.Width)) / 2
	a.posY = screenH - int(size.Height) - 48

	go a.onReady()

	// The window stays hidden until the first visible frame.
	a.fyneApp.Run()
	return nil
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(a.fyneApp.Quit)
	}
}

// Render implements overlay.Sink.
func (a *App) Render(f overlay.Frame) {
	if a.indicator == nil {
		return
	}
	a.indicator.SetFrame(f)

	a.mu.Lock()
	wasShown := a.shown
	a.shown = f.State != overlay.Hidden
	show, hide := a.shown && !wasShown, !a.shown && wasShown
	a.mu.Unlock()

	fyne.Do(func() {
		switch {
		case show:
			a.show()
		case hide:
			a.window.Hide()
		}
		a.indicator.Refresh()
	})
}

// show raises the window without taking focus from the app being dictated
// into. Runs on the fyne thread.
func (a *App) show() {
	if a.window == nil {
		return
	}
	glfwWin := glfw.GetCurrentContext()
	if glfwWin == nil {
		a.window.Show()
		return
	}
	glfwWin.SetPos(a.posX, a.posY)
	glfwWin.SetAttrib(glfw.FocusOnShow, glfw.False)
	glfwWin.SetAttrib(glfw.Floating, glfw.True)
	glfwWin.Show()
}

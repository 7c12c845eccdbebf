// Package browser provides the headless rendering substrate shared by every
// source of one task.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrLaunch wraps any failure to start the browser. It is the only
	// browser error that fails a whole task.
	ErrLaunch = errors.New("browser launch failed")
	ErrClosed = errors.New("browser session closed")
)

type Page struct {
	URL   string
	Title string
	HTML  string
}

// Session renders pages in one running browser. Render is safe for
// concurrent use; each call gets its own tab.
type Session interface {
	Render(ctx context.Context, url string) (Page, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context) (Session, error) { return f(ctx) }

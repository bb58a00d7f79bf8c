// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewControllerStartsHidden(t *testing.T) {
	require := require.New(t)
	c := New(nil)
	s := c.Style()
	require.Equal(ModeHidden, s.Mode)
	require.True(s.AriaHidden)
	require.Equal(-1, s.TabIndex)
}

func TestShowFullscreenClearsRect(t *testing.T) {
	require := require.New(t)
	c := New(nil)
	c.ShowAnchored(Rect{Top: 10, Left: 20, Width: 30, Height: 40})
	s := c.ShowFullscreen()
	require.Equal(ModeFullscreen, s.Mode)
	require.Equal(Rect{}, s.Rect)
	require.False(s.AriaHidden)
	require.Equal(0, s.TabIndex)
}

func TestShowAnchoredClampsNegativeRect(t *testing.T) {
	require := require.New(t)
	c := New(nil)
	s := c.ShowAnchored(Rect{Top: -5, Left: -1, Width: 100, Height: -20})
	require.Equal(ModeAnchored, s.Mode)
	require.Equal(Rect{Top: 0, Left: 0, Width: 100, Height: 0}, s.Rect)
}

func TestHideIsNoopWhenSticky(t *testing.T) {
	require := require.New(t)
	c := New(nil)
	c.ShowFullscreen()
	c.SetSticky(true)

	s := c.Hide()
	require.Equal(ModeFullscreen, s.Mode)

	c.SetSticky(false)
	s = c.Hide()
	require.Equal(ModeHidden, s.Mode)
}

func TestOnChangeFiresOnEveryTransition(t *testing.T) {
	require := require.New(t)
	var seen []Mode
	c := New(func(s Style) { seen = append(seen, s.Mode) })

	c.ShowFullscreen()
	c.ShowAnchored(Rect{Width: 10, Height: 10})
	c.Hide()

	require.Equal([]Mode{ModeFullscreen, ModeAnchored, ModeHidden}, seen)
}

func TestCSSTextPerMode(t *testing.T) {
	require := require.New(t)
	c := New(nil)

	require.Equal("display: none;", c.Style().CSSText())

	fs := c.ShowFullscreen()
	require.Contains(fs.CSSText(), "position: fixed; inset: 0;")

	an := c.ShowAnchored(Rect{Top: 1, Left: 2, Width: 3, Height: 4})
	text := an.CSSText()
	require.Contains(text, "top: 1px;")
	require.Contains(text, "left: 2px;")
	require.Contains(text, "width: 3px;")
	require.Contains(text, "height: 4px;")
}

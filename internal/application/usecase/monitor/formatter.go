package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

func (f *Formatter) Render(st *State, status Status, mode RenderMode) string {
	snap := st.Snapshot()

	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[MKT] ", ansiDim))
	sb.WriteString(colorize(status.State, stateColor(status.State)))
	sb.WriteString(colorize(fmt.Sprintf(" ch=%d", status.Channels), ansiDim))

	for _, sym := range st.Symbols() {
		sb.WriteString(colorize("  ||  ", ansiDim))
		ps := snap[sym]

		px := "--"
		col := ansiYellow
		if ps.seen {
			px = ps.str
			switch ps.dir {
			case DirUp:
				col = ansiGreen
			case DirDown:
				col = ansiRed
			}
		}

		sb.WriteString(sym)
		sb.WriteString(" ")
		sb.WriteString(colorize(px, col))
		if ps.seen && ps.vol > 0 {
			sb.WriteString(colorize(" vo="+strconv.FormatFloat(ps.vol, 'f', -1, 64), ansiDim))
		}
	}

	if mode == RenderSnapshot {
		sb.WriteString(colorize(fmt.Sprintf("  [rec %d/%d dropped]", status.Written, status.Dropped), ansiDim))
	}
	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

func stateColor(state string) string {
	switch state {
	case "CONNECTED":
		return ansiGreen
	case "CONNECTING":
		return ansiYellow
	default:
		return ansiRed
	}
}

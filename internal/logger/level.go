package logger

import (
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// levelGate drops events below a level that can change at runtime. Every
// logger derived from the root shares the gate, so a reload reaches them all.
type levelGate struct {
	next  io.Writer
	level atomic.Int32
}

func newLevelGate(next io.Writer, level zerolog.Level) *levelGate {
	g := &levelGate{next: next}
	g.set(level)
	return g
}

func (g *levelGate) set(level zerolog.Level) { g.level.Store(int32(level)) }

func (g *levelGate) get() zerolog.Level { return zerolog.Level(g.level.Load()) }

func (g *levelGate) Write(p []byte) (int, error) {
	return g.next.Write(p)
}

func (g *levelGate) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < g.get() && level != zerolog.NoLevel {
		return len(p), nil
	}
	if lw, ok := g.next.(zerolog.LevelWriter); ok {
		return lw.WriteLevel(level, p)
	}
	return g.next.Write(p)
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/engine/memory"
	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/widget"
)

// runSimulation mounts a widget on the in-memory engine, feeds it pointer
// positions read from r and writes each hover change to w.
func runSimulation(r io.Reader, w io.Writer, states *geojson.FeatureCollection, doc style.Document, logger *slog.Logger) error {
	var eng *memory.Engine
	wdg := widget.New(widget.Options{Document: doc, Logger: logger})
	err := wdg.Mount(func(o engine.Options) (engine.Engine, error) {
		eng = memory.New(o,
			memory.WithLogger(logger),
			memory.WithFeatures(style.SourceStates, states),
			memory.WithStateListener(func(ref engine.FeatureRef, state engine.State) {
				if hover, ok := state[engine.Hover].(bool); ok {
					fmt.Fprintf(w, "set %s hover=%t\n", ref, hover)
				}
			}),
		)
		return eng, nil
	})
	if err != nil {
		return err
	}
	defer wdg.Unmount()

	eng.Load()
	if err := wdg.Err(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		switch {
		case text == "" || strings.HasPrefix(text, "#"):
			continue
		case text == "leave":
			eng.PointerOut()
		default:
			pt, err := parsePoint(text)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			eng.PointerAt(pt)
		}

		if ref, ok := wdg.Hovered(); ok {
			fmt.Fprintf(w, "hover %s\n", ref)
		} else {
			fmt.Fprintln(w, "hover none")
		}
	}
	return scanner.Err()
}

func parsePoint(s string) (orb.Point, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 2 {
		return orb.Point{}, fmt.Errorf("want \"lon lat\" or \"leave\", got %q", s)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("bad longitude %q", fields[0])
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("bad latitude %q", fields[1])
	}
	return orb.Point{lon, lat}, nil
}

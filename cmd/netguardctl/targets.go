package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/supporttools/GoNetGuard/pkg/client"
	"github.com/supporttools/GoNetGuard/pkg/console"
)

// pickShown is how many matching names the picker prints per query
const pickShown = 10

// resolveTargets merges explicit device names with every device matching
// filter. A name listed twice keeps its first position.
func resolveTargets(ctx context.Context, c *client.Client, names []string, filter string) ([]string, error) {
	targets := append([]string(nil), names...)
	if strings.TrimSpace(filter) != "" {
		devices, err := c.ListAllDevices(ctx, client.DeviceFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		view := console.NewInventoryView()
		view.SetDevices(devices)
		view.SetQuery(filter)
		view.Selection.ToggleAll()
		targets = append(targets, view.Selection.SelectedVisible()...)
	}
	return uniqueNames(targets), nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// pickTargets is the interactive device picker. Every line read from in is a
// search query; the matches are printed once input pauses for delay, so a
// burst of edits renders only the last one. "*" shows every device. An empty
// line, or the end of input, picks the devices the last query shows. Nothing
// is picked when no query was applied.
func pickTargets(ctx context.Context, devices []client.Device, in io.Reader, out io.Writer, delay time.Duration) ([]string, error) {
	var mu sync.Mutex
	applied := false
	view := console.NewInventoryView()
	view.SetDevices(devices)

	search := console.NewDebouncer(delay, func(query string) {
		mu.Lock()
		defer mu.Unlock()
		if query == "*" {
			query = ""
		}
		view.SetQuery(query)
		applied = true

		visible := console.DeviceNames(view.Visible())
		shown := visible
		if len(shown) > pickShown {
			shown = shown[:pickShown]
		}
		line := fmt.Sprintf("%d of %d devices match %q", len(visible), len(devices), view.Query())
		if len(shown) > 0 {
			line += ": " + strings.Join(shown, ", ")
			if len(visible) > len(shown) {
				line += fmt.Sprintf(" (+%d)", len(visible)-len(shown))
			}
		}
		fmt.Fprintln(out, line)
	})
	defer search.Stop()

	fmt.Fprintln(out, "type a search and press enter to refine; an empty line picks the matches")

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-lines:
			query := strings.TrimSpace(line)
			if ok && query != "" {
				search.Push(query)
				continue
			}

			search.Flush()
			mu.Lock()
			defer mu.Unlock()
			if !applied {
				return nil, nil
			}
			view.Selection.Clear()
			view.Selection.ToggleAll()
			return view.Selection.SelectedVisible(), nil
		}
	}
}

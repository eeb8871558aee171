// Command monitor is a terminal dashboard for live agent activity: a
// force-directed delegation graph, a narrative feed, the reasoning stream,
// and a background job table, all fed by the activity stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"aether_monitor/internal/activity"
	"aether_monitor/internal/config"
	"aether_monitor/internal/forcesim"
	"aether_monitor/internal/source"
	"aether_monitor/internal/stream"
)

// viewState is the shared model behind the draw callbacks. tview draw code
// runs on the event loop while stream callbacks arrive on the manager
// goroutine, so access goes through the mutex.
type viewState struct {
	mu     sync.Mutex
	snap   activity.Snapshot
	status stream.Status

	// Inner rect of the graph box as of the last draw, for mouse hit tests.
	graphX, graphY, graphW, graphH int
}

func (v *viewState) setSnapshot(s activity.Snapshot) {
	v.mu.Lock()
	v.snap = s
	v.mu.Unlock()
}

func (v *viewState) setStatus(s stream.Status) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
}

func (v *viewState) get() (activity.Snapshot, stream.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap, v.status
}

func (v *viewState) setGraphRect(x, y, w, h int) {
	v.mu.Lock()
	v.graphX, v.graphY, v.graphW, v.graphH = x, y, w, h
	v.mu.Unlock()
}

func (v *viewState) graphRect() (int, int, int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graphX, v.graphY, v.graphW, v.graphH
}

func main() {
	configPath := flag.String("config", "", "path to monitor.toml (default: ~/.aether/monitor.toml)")
	urlFlag := flag.String("url", "", "activity stream URL override (ws://, wss://, http:// or https://)")
	demo := flag.Bool("demo", false, "run an embedded scripted event source instead of connecting out")
	reducedMotion := flag.Bool("reduced-motion", false, "disable ambient graph motion")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for layout and demo scenario")
	logPath := flag.String("log", "", "write diagnostic logs to this file (default: discard)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to tview; logs go to a file or nowhere.
	logger := log.New(io.Discard, "", log.LstdFlags)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = log.New(f, "", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamURL := firstNonEmpty(*urlFlag, cfg.Stream.URL, "ws://localhost:8123/activity/ws")
	if *demo {
		embeddedURL, stopEmbedded, err := startEmbeddedSource(ctx, logger, *seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start embedded source: %v\n", err)
			os.Exit(1)
		}
		defer stopEmbedded()
		streamURL = embeddedURL
	}

	store := activity.NewStore()
	mgr := stream.New(stream.Config{
		URL:         streamURL,
		BackoffBase: durationMS(cfg.Stream.BackoffBaseMS, 0),
		BackoffCap:  durationMS(cfg.Stream.BackoffCapMS, 0),
		GraceDelay:  durationMS(cfg.Stream.GraceDelayMS, 0),
	}, store, logger)

	sim := forcesim.New(simParams(cfg.Graph), *seed)
	sim.SetReducedMotion(*reducedMotion || cfg.UI.ReducedMotion)

	view := &viewState{snap: store.Snapshot()}
	mgr.OnStatus(view.setStatus)

	app := tview.NewApplication()

	graphBox := tview.NewBox()
	graphBox.SetTitle("Delegation Graph (drag nodes, R reheat)").SetBorder(true)

	feedView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	feedView.SetTitle("Activity").SetBorder(true)

	thinkingView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	thinkingView.SetTitle("Reasoning").SetBorder(true)

	jobsTable := tview.NewTable().
		SetBorders(false)
	jobsTable.SetTitle("Jobs").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(feedView, 0, 3, false).
		AddItem(thinkingView, 0, 2, false).
		AddItem(jobsTable, 8, 0, false)

	mainLayout := tview.NewFlex().
		AddItem(graphBox, 0, 3, false).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 1, false).
		AddItem(statusView, 3, 0, false)

	graphBox.SetDrawFunc(func(screen tcell.Screen, x, y, w, h int) (int, int, int, int) {
		innerX, innerY, innerW, innerH := x+1, y+1, w-2, h-2
		if innerW < 4 || innerH < 4 {
			return innerX, innerY, innerW, innerH
		}
		prevX, prevY, prevW, prevH := view.graphRect()
		if prevW != innerW || prevH != innerH || prevX != innerX || prevY != innerY {
			view.setGraphRect(innerX, innerY, innerW, innerH)
			// World y is doubled so distances are isotropic on 2:1 cells.
			sim.SetCenter(float64(innerW)/2, float64(innerH))
		}
		snap, _ := view.get()
		drawGraph(screen, innerX, innerY, innerW, innerH, snap, sim)
		return innerX, innerY, innerW, innerH
	})

	// Keep the sim graph in sync with the store and wake it when activity
	// arrives or the edge set changes.
	var lastEdges string
	cancelSub := store.Subscribe(func(snap activity.Snapshot) {
		view.setSnapshot(snap)
		edges := snap.ActiveEdges
		if len(edges) == 0 {
			edges = activity.TopologyEdges(snap.AgentsSeen)
		}
		sim.SetGraph(snap.AgentsSeen, edges)
		if key := edgeKey(edges); key != lastEdges {
			lastEdges = key
			sim.Wake()
		}
		if snap.AnyFiring() {
			sim.Wake()
		}
	})
	defer cancelSub()

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10, tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		switch event.Rune() {
		case 'q':
			app.Stop()
			return nil
		case 'r', 'R':
			sim.Reheat(1.0)
			return nil
		}
		return event
	})

	var dragID activity.AgentID
	app.SetMouseCapture(func(event *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
		mx, my := event.Position()
		gx, gy, gw, gh := view.graphRect()
		inside := mx >= gx && mx < gx+gw && my >= gy && my < gy+gh
		wx := float64(mx - gx)
		wy := float64(my-gy) * 2

		switch action {
		case tview.MouseLeftDown:
			if !inside {
				return event, action
			}
			if id, ok := nearestNode(sim, wx, wy, 6); ok {
				if sim.Pin(id) {
					dragID = id
				}
				return nil, action
			}
		case tview.MouseMove:
			if dragID != "" {
				sim.Drag(dragID, wx, wy)
				return nil, action
			}
		case tview.MouseLeftUp:
			if dragID != "" {
				sim.Release(dragID)
				dragID = ""
				return nil, action
			}
		}
		return event, action
	})

	tick := durationMS(cfg.UI.TickMS, 33*time.Millisecond)
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		var lastVersion uint64
		var lastStatus stream.Status
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			sim.Step()

			snap, status := view.get()
			alpha := sim.Alpha()
			structural := snap.Version != lastVersion
			if !structural && status == lastStatus && alpha <= 0 {
				continue
			}
			lastVersion = snap.Version
			lastStatus = status

			app.QueueUpdateDraw(func() {
				if structural {
					feedView.SetText(renderFeed(snap))
					feedView.ScrollToEnd()
					thinkingView.SetText(renderThinking(snap))
					thinkingView.ScrollToEnd()
					renderJobs(jobsTable, mgr.Jobs().List())
				}
				statusView.SetText(renderStatus(streamURL, snap, status, alpha, *demo))
			})
		}
	}()

	go mgr.Run(ctx)

	err = app.SetRoot(root, true).EnableMouse(true).Run()
	cancel()
	mgr.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

// startEmbeddedSource runs the scripted scenario server in-process and
// returns the websocket URL to connect to.
func startEmbeddedSource(ctx context.Context, logger *log.Logger, seed int64) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}

	hub := source.NewHub(256)
	source.NewScenario(hub, logger, seed).Start(ctx)

	server := &http.Server{
		Handler:           source.NewServer(hub, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("embedded source: %v", err)
		}
	}()

	stop := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return "ws://" + ln.Addr().String() + "/activity/ws", stop, nil
}

// simParams maps config overrides onto the default physics parameters.
func simParams(g config.GraphConfig) forcesim.Params {
	p := forcesim.DefaultParams()
	if g.RepulsionHub > 0 {
		p.RepulsionHub = g.RepulsionHub
	}
	if g.RepulsionLeaf > 0 {
		p.RepulsionLeaf = g.RepulsionLeaf
	}
	if g.SpringLength > 0 {
		p.SpringLength = g.SpringLength
	}
	if g.SpringStrength > 0 {
		p.SpringStrength = g.SpringStrength
	}
	if g.CenterStrength > 0 {
		p.CenterStrength = g.CenterStrength
	}
	if g.AlphaFloor > 0 {
		p.AlphaFloor = g.AlphaFloor
	}
	if g.JitterAmplitude > 0 {
		p.JitterAmplitude = g.JitterAmplitude
	}
	return p
}

// drawGraph renders edges then nodes into the graph box. World coordinates
// map x to columns directly and halve y into rows.
func drawGraph(screen tcell.Screen, x, y, w, h int, snap activity.Snapshot, sim *forcesim.Simulation) {
	positions := sim.Positions()
	if len(positions) == 0 {
		emitString(screen, x+2, y+1, tcell.StyleDefault.Foreground(tcell.ColorGray), "waiting for activity...")
		return
	}

	cell := func(px, py float64) (int, int) {
		return x + int(math.Round(px)), y + int(math.Round(py/2))
	}
	clamp := func(cx, cy int) (int, int, bool) {
		return cx, cy, cx >= x && cx < x+w && cy >= y && cy < y+h
	}

	edgeStyle := tcell.StyleDefault.Foreground(tcell.ColorDimGray)
	activeStyle := tcell.StyleDefault.Foreground(tcell.ColorLightSkyBlue)
	for _, e := range activity.TopologyEdges(snap.AgentsSeen) {
		drawEdge(screen, positions, e, cell, clamp, edgeStyle)
	}
	for _, e := range snap.ActiveEdges {
		drawEdge(screen, positions, e, cell, clamp, activeStyle)
	}

	for id, pos := range positions {
		cx, cy := cell(pos.X, pos.Y)
		cx, cy, ok := clamp(cx, cy)
		if !ok {
			continue
		}
		ident := activity.Lookup(id)
		style := tcell.StyleDefault.Foreground(tcell.GetColor(ident.Color))
		var r rune
		switch snap.State(id) {
		case activity.NodeFiring:
			r = '◉'
			style = style.Bold(true)
		case activity.NodeDone:
			r = '○'
			style = style.Dim(true)
		case activity.NodeIdle:
			r = '●'
		default:
			r = '·'
			style = style.Dim(true)
		}
		screen.SetContent(cx, cy, r, nil, style)

		label := ident.Label
		if snap.ActiveAgent == id {
			label = "▸ " + label
		}
		lx := cx + 2
		if lx+len(label) > x+w {
			lx = cx - len(label) - 1
		}
		if lx >= x {
			emitString(screen, lx, cy, style, label)
		}
	}
}

func drawEdge(
	screen tcell.Screen,
	positions map[activity.AgentID]forcesim.Position,
	e activity.Edge,
	cell func(float64, float64) (int, int),
	clamp func(int, int) (int, int, bool),
	style tcell.Style,
) {
	from, okFrom := positions[e.Source]
	to, okTo := positions[e.Target]
	if !okFrom || !okTo {
		return
	}
	x0, y0 := cell(from.X, from.Y)
	x1, y1 := cell(to.X, to.Y)
	plotLine(x0, y0, x1, y1, func(cx, cy int) {
		// Keep the endpoints clear for the node glyphs.
		if (cx == x0 && cy == y0) || (cx == x1 && cy == y1) {
			return
		}
		if cx, cy, ok := clamp(cx, cy); ok {
			screen.SetContent(cx, cy, '·', nil, style)
		}
	})
}

// plotLine walks the Bresenham line between two cells.
func plotLine(x0, y0, x1, y1 int, plot func(int, int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// nearestNode finds the closest node within maxDist world units of a point.
func nearestNode(sim *forcesim.Simulation, wx, wy, maxDist float64) (activity.AgentID, bool) {
	var best activity.AgentID
	bestDist := maxDist
	for id, pos := range sim.Positions() {
		d := math.Hypot(pos.X-wx, pos.Y-wy)
		if d <= bestDist {
			best = id
			bestDist = d
		}
	}
	return best, best != ""
}

func renderFeed(snap activity.Snapshot) string {
	entries := activity.BuildFeed(snap.LiveTimeline, snap.DelegationMessages)
	if len(entries) == 0 {
		return "[gray]No activity yet[-]"
	}
	if len(entries) > 200 {
		entries = entries[len(entries)-200:]
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(fmt.Sprintf(
			"[gray]%s[-] %s\n",
			time.UnixMilli(e.TS).Format("15:04:05"),
			tview.Escape(e.Text),
		))
	}
	return b.String()
}

func renderThinking(snap activity.Snapshot) string {
	if strings.TrimSpace(snap.ThinkingStream) == "" {
		return "[gray]No reasoning yet[-]"
	}
	return tview.Escape(snap.ThinkingStream)
}

func renderJobs(table *tview.Table, jobs []activity.Job) {
	table.Clear()
	headers := []string{"Job", "Type", "Status", "Started", "Title"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, j := range jobs {
		row := i + 1
		statusColor := tcell.ColorYellow
		switch j.Status {
		case activity.JobCompleted:
			statusColor = tcell.ColorGreen
		case activity.JobFailed:
			statusColor = tcell.ColorRed
		}
		table.SetCell(row, 0, tview.NewTableCell(shortID(j.ID)))
		table.SetCell(row, 1, tview.NewTableCell(j.Type))
		table.SetCell(row, 2, tview.NewTableCell(string(j.Status)).SetTextColor(statusColor))
		table.SetCell(row, 3, tview.NewTableCell(time.UnixMilli(j.StartedAt).Format("15:04:05")))
		table.SetCell(row, 4, tview.NewTableCell(trimLine(j.Title, 48)))
	}
}

func renderStatus(url string, snap activity.Snapshot, status stream.Status, alpha float64, demo bool) string {
	conn := "[red]disconnected[-]"
	if status.Connected {
		conn = "[green]connected[-]"
	} else if status.Attempts > 0 {
		conn = fmt.Sprintf("[yellow]reconnecting (attempt %d)[-]", status.Attempts)
	}
	session := "idle"
	if snap.IsActive {
		session = "active"
		if snap.ActiveAgent != "" {
			session = "active: " + activity.DisplayName(snap.ActiveAgent)
		}
	}
	mode := ""
	if demo {
		mode = " | demo"
	}
	return fmt.Sprintf(
		"%s %s%s | session %s | agents %d | alpha %.2f | F10 quit, R reheat",
		conn, url, mode, session, len(snap.AgentsSeen), alpha,
	)
}

func emitString(screen tcell.Screen, x, y int, style tcell.Style, s string) {
	for i, r := range s {
		screen.SetContent(x+i, y, r, nil, style)
	}
}

func edgeKey(edges []activity.Edge) string {
	var b strings.Builder
	for _, e := range edges {
		b.WriteString(string(e.Source))
		b.WriteByte('>')
		b.WriteString(string(e.Target))
		b.WriteByte(';')
	}
	return b.String()
}

func durationMS(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

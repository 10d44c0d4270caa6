package game

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rodaine/table"
)

// Stats collects runtime counters for the admin console: script
// executions per source, spawn counts per monster type, and gate
// overflows.
type Stats struct {
	mu sync.Mutex

	scriptRuns   map[string]*scriptCounter
	spawns       map[string]uint64
	overflows    uint64
	startTime    time.Time
	totalRuns    uint64
	totalErrors  uint64
	totalRunTime time.Duration
}

type scriptCounter struct {
	runs    uint64
	errors  uint64
	total   time.Duration
	maxTime time.Duration
}

func NewStats() *Stats {
	return &Stats{
		scriptRuns: map[string]*scriptCounter{},
		spawns:     map[string]uint64{},
		startTime:  time.Now(),
	}
}

func (s *Stats) CountScriptRun(path string, dur time.Duration, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.scriptRuns[path]
	if c == nil {
		c = &scriptCounter{}
		s.scriptRuns[path] = c
	}
	c.runs++
	c.total += dur
	if dur > c.maxTime {
		c.maxTime = dur
	}
	s.totalRuns++
	s.totalRunTime += dur
	if isError {
		c.errors++
		s.totalErrors++
	}
}

func (s *Stats) CountSpawn(typeName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawns[typeName]++
}

func (s *Stats) CountOverflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflows++
}

func (s *Stats) Overflows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}

// RenderScripts writes the per-script execution table, busiest first.
func (s *Stats) RenderScripts(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		path string
		c    *scriptCounter
	}
	rows := make([]row, 0, len(s.scriptRuns))
	for path, c := range s.scriptRuns {
		rows = append(rows, row{path, c})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].c.runs > rows[j].c.runs })

	tbl := table.New("SCRIPT", "RUNS", "ERRORS", "AVG", "MAX").WithWriter(w)
	for _, r := range rows {
		avg := time.Duration(0)
		if r.c.runs > 0 {
			avg = r.c.total / time.Duration(r.c.runs)
		}
		tbl.AddRow(r.path, r.c.runs, r.c.errors, avg.Round(time.Microsecond), r.c.maxTime.Round(time.Microsecond))
	}
	tbl.Print()
}

// RenderSpawns writes the per-type spawn count table.
func (s *Stats) RenderSpawns(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.spawns))
	for name := range s.spawns {
		names = append(names, name)
	}
	sort.Strings(names)

	tbl := table.New("MONSTER", "SPAWNED").WithWriter(w)
	for _, name := range names {
		tbl.AddRow(name, s.spawns[name])
	}
	tbl.Print()
}

// RenderSummary writes the global counters.
func (s *Stats) RenderSummary(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := table.New("METRIC", "VALUE").WithWriter(w)
	tbl.AddRow("uptime", time.Since(s.startTime).Round(time.Second))
	tbl.AddRow("script runs", s.totalRuns)
	tbl.AddRow("script errors", s.totalErrors)
	tbl.AddRow("script time", s.totalRunTime.Round(time.Millisecond))
	tbl.AddRow("gate overflows", s.overflows)
	tbl.Print()
}

// Stats exposes the game's counters to the console.
func (g *Game) Stats() *Stats {
	return g.stats
}

package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/knapping/internal/config"
	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/vec"
	"golang.org/x/sync/errgroup"
)

// runResult итог одной симуляции
type runResult struct {
	seed      int64
	strikes   int
	mistakes  int
	quality   float64
	complete  bool
	destroyed bool
	rows      []string
}

func main() {
	var (
		patternsFile = flag.String("patterns", "assets/patterns.yaml", "YAML с шаблонами")
		patternName  = flag.String("pattern", "knife_blade", "Шаблон заготовки")
		modeName     = flag.String("mode", "advanced", "Режим: default, advanced")
		strategy     = flag.String("strategy", "sweep", "Порядок ударов: sweep, random")
		runs         = flag.Int("runs", 20, "Количество симуляций")
		seed         = flag.Int64("seed", 1, "Начальный сид")
		allowance    = flag.Int("allowance", 3, "Допуск ошибок")
		cone         = flag.Int("cone", 30, "Угол конуса излома")
		workers      = flag.Int("workers", 4, "Параллельные симуляции")
		show         = flag.Bool("show", false, "Печатать итоговую сетку первой симуляции")
	)
	flag.Parse()

	mode, err := knapping.ParseMode(*modeName)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *strategy != "sweep" && *strategy != "random" {
		log.Fatalf("❌ Неизвестная стратегия: %s", *strategy)
	}

	store := knapping.NewPatternStore()
	if _, err := config.LoadPatterns(*patternsFile, store); err != nil {
		log.Fatalf("❌ %v", err)
	}
	pattern, ok := store.Lookup(*patternName)
	if !ok {
		log.Fatalf("❌ Шаблон %q не найден, доступны: %s", *patternName, strings.Join(store.Names(), ", "))
	}

	cfg := knapping.DefaultConfig()
	cfg.MistakeAllowance = *allowance
	cfg.Fracture.ConeAngle = *cone

	results := make([]runResult, *runs)
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(*workers)
	for i := 0; i < *runs; i++ {
		i := i
		g.Go(func() error {
			res := simulate(pattern, cfg, mode, *strategy, *seed+int64(i))
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	printSummary(os.Stdout, *patternName, mode, *strategy, results)
	if *show && len(results) > 0 {
		fmt.Println()
		for _, row := range results[0].rows {
			fmt.Println(row)
		}
	}
}

// simulate прогоняет одну заготовку до завершения или разрушения
func simulate(pattern *knapping.Pattern, cfg knapping.Config, mode knapping.Mode, strategy string, seed int64) runResult {
	rng := rand.New(rand.NewSource(seed))
	resolver := knapping.NewResolver(cfg, rng)
	ledger := knapping.NewLedger()
	id := knapping.SurfaceID(fmt.Sprintf("sim-%d", seed))
	surface := knapping.NewSurface(id, pattern)

	res := runResult{seed: seed}
	for _, p := range strikeOrder(pattern, strategy, rng) {
		if surface.Terminal() {
			break
		}
		if !surface.Occupied(p) {
			continue
		}
		out := resolver.ResolveStrike(id, surface, ledger, p.X, p.Y, mode)
		res.strikes++
		res.mistakes = out.TotalMistakes
		if out.Destroyed {
			res.destroyed = true
			break
		}
	}

	if !res.destroyed {
		done := resolver.CheckCompletion(id, surface, ledger)
		res.complete = done.Complete
		res.quality = done.QualityMultiplier
		res.mistakes = done.TotalMistakes
	}
	grid := surface.Occupancy
	prot := surface.Protection()
	res.rows = render(&grid, &prot)
	return res
}

// strikeOrder возвращает отходные клетки в порядке ударов.
// sweep идёт от края к центру, random перемешивает.
func strikeOrder(pattern *knapping.Pattern, strategy string, rng *rand.Rand) []vec.Vec2 {
	var cells []vec.Vec2
	for z := 0; z < knapping.GridSize; z++ {
		for x := 0; x < knapping.GridSize; x++ {
			if !pattern.Protected(x, z) {
				cells = append(cells, vec.Vec2{X: x, Y: z})
			}
		}
	}

	if strategy == "random" {
		rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
		return cells
	}

	edge := func(p vec.Vec2) int {
		d := p.X
		for _, v := range []int{p.Y, knapping.GridSize - 1 - p.X, knapping.GridSize - 1 - p.Y} {
			if v < d {
				d = v
			}
		}
		return d
	}
	sort.SliceStable(cells, func(i, j int) bool { return edge(cells[i]) < edge(cells[j]) })
	return cells
}

// render рисует сетку: '#' форма, 'o' оставшийся отход, '.' пусто
func render(occ, prot *knapping.Grid) []string {
	rows := make([]string, knapping.GridSize)
	var sb strings.Builder
	for z := 0; z < knapping.GridSize; z++ {
		sb.Reset()
		for x := 0; x < knapping.GridSize; x++ {
			p := vec.Vec2{X: x, Y: z}
			switch {
			case occ.Get(p) && prot.Get(p):
				sb.WriteByte('#')
			case occ.Get(p):
				sb.WriteByte('o')
			case prot.Get(p):
				sb.WriteByte('x')
			default:
				sb.WriteByte('.')
			}
		}
		rows[z] = sb.String()
	}
	return rows
}

func printSummary(w *os.File, pattern string, mode knapping.Mode, strategy string, results []runResult) {
	completed, destroyed := 0, 0
	strikes, mistakes := 0, 0
	quality := 0.0
	for _, r := range results {
		strikes += r.strikes
		mistakes += r.mistakes
		switch {
		case r.complete:
			completed++
			quality += r.quality
		case r.destroyed:
			destroyed++
		}
	}

	n := len(results)
	if n == 0 {
		fmt.Fprintln(w, "Нет симуляций")
		return
	}
	fmt.Fprintf(w, "🪨 %s, режим %s, стратегия %s, прогонов %d\n", pattern, mode, strategy, n)
	fmt.Fprintf(w, "  завершено:   %d\n", completed)
	fmt.Fprintf(w, "  разрушено:   %d\n", destroyed)
	fmt.Fprintf(w, "  ударов:      %.1f в среднем\n", float64(strikes)/float64(n))
	fmt.Fprintf(w, "  ошибок:      %.2f в среднем\n", float64(mistakes)/float64(n))
	if completed > 0 {
		fmt.Fprintf(w, "  качество:    x%.3f в среднем\n", quality/float64(completed))
	}
}

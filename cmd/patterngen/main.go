package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-ptycho/internal/config"
	"github.com/coreman2200/funtimes-ptycho/internal/pattern"
	"github.com/coreman2200/funtimes-ptycho/internal/vis"
)

// patterngen prints an illumination pattern without touching hardware,
// either as the PATTERN block a host would receive or as an ASCII map.
func main() {
	var (
		configPath = flag.String("config", "", "optional config.yaml for geometry and pattern parameters")
		kindArg    = flag.String("kind", "", "pattern kind: rings | center | spiral | grid (default from config)")
		spacing    = flag.Float64("spacing-mm", 0, "override pattern.spacing_mm")
		ascii      = flag.Bool("ascii", false, "print an ASCII map instead of the PATTERN block")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
		}
		cfg = c
	}
	if *kindArg != "" {
		cfg.Pattern.Kind = *kindArg
	}
	if *spacing > 0 {
		cfg.Pattern.SpacingMM = *spacing
	}

	k, err := pattern.ParseKind(cfg.Pattern.Kind)
	if err != nil {
		log.Fatal().Err(err).Msg("bad pattern kind")
	}
	eng := pattern.NewEngine(pattern.Geometry{
		Width:          cfg.Matrix.Width,
		Height:         cfg.Matrix.Height,
		PhysicalSizeMM: cfg.Matrix.PhysicalSizeMM,
		PitchMM:        cfg.Matrix.PitchMM,
	})
	p := cfg.Pattern
	eng.Register(pattern.Rings{Inner: p.Rings.Inner, Middle: p.Rings.Middle, Outer: p.Rings.Outer, SpacingMM: p.SpacingMM})
	eng.Register(pattern.CenterOnly{})
	eng.Register(pattern.Spiral{SpacingMM: p.SpacingMM, Turns: p.Turns})
	eng.Register(pattern.Lattice{SpacingX: p.GridX, SpacingY: p.GridY})

	g := eng.NewGrid()
	if err := eng.Generate(g, k); err != nil {
		log.Fatal().Err(err).Str("kind", k.String()).Msg("generate failed")
	}
	log.Info().Str("kind", k.String()).Int("lit", g.Count()).Msg("pattern generated")

	if *ascii {
		var b strings.Builder
		for y := 0; y < g.Height(); y++ {
			for x := 0; x < g.Width(); x++ {
				if g.At(x, y) {
					b.WriteByte('#')
				} else {
					b.WriteByte('.')
				}
			}
			b.WriteByte('\n')
		}
		fmt.Print(b.String())
		return
	}

	sink := vis.New(vis.NewConsole(os.Stdout, vis.DefaultRetries, nil), 0, nil)
	sink.Enable()
	sink.ExportPattern(g)
}

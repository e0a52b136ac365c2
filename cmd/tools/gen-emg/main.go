// Command gen-emg generates synthetic EMG captures for dev mode and tests,
// and optionally the matching RMS model artifact.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/emg"
)

func main() {
	output := flag.String("o", "emg-fixture.txt", "output path (- for stdout)")
	records := flag.Int("n", 7500, "number of records")
	seed := flag.Uint64("seed", 1, "random seed")
	period := flag.Float64("period", 1.5, "seconds each channel stays active")
	malformed := flag.Float64("malformed", 0, "fraction of records to corrupt, 0-1")
	configPath := flag.String("config", "", "acquisition config file (default built-in)")
	modelPath := flag.String("model", "", "also write an RMS model artifact (.json) here")
	threshold := flag.Float64("threshold", 40, "idle threshold of the RMS model")
	flag.Parse()

	p := config.DefaultPipeline()
	if *configPath != "" {
		f, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if p, err = f.Pipeline(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
	}
	if *malformed < 0 || *malformed > 1 {
		log.Fatalf("-malformed must be between 0 and 1, got %v", *malformed)
	}

	var w io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *output, err)
		}
		defer f.Close()
		w = f
	}

	gen := emg.NewSynthetic(p.Channels, p.SampleRateHz, *period, *seed)
	n, err := writeRecords(w, gen, *records, *malformed, rand.New(rand.NewPCG(*seed, 7)))
	if err != nil {
		log.Fatalf("failed to write records: %v", err)
	}
	if *output != "-" {
		log.Printf("✓ Created: %s (%d records, %d corrupted)", *output, *records, n)
	}

	if *modelPath != "" {
		idle := 0
		for i, name := range p.ClassNames {
			if name == p.IdleClass {
				idle = i
			}
		}
		a := classifier.RMSArtifact(p.SamplesPerWindow, p.Channels, len(p.ClassNames), idle, *threshold)
		if err := a.Save(*modelPath); err != nil {
			log.Fatalf("failed to write model: %v", err)
		}
		log.Printf("✓ Created: %s", *modelPath)
	}
}

// corruptions are the kinds of damage a noisy serial line does to a record.
var corruptions = []func(line string) string{
	func(line string) string { return line[:len(line)/2] },
	func(line string) string { return line + ",0" },
	func(line string) string { return "x" + line[1:] },
	func(string) string { return "" },
}

// writeRecords writes n generated records to w, corrupting roughly the given
// fraction of them. It returns how many were corrupted.
func writeRecords(w io.Writer, gen *emg.Synthetic, n int, malformed float64, rng *rand.Rand) (int, error) {
	bw := bufio.NewWriter(w)
	corrupted := 0
	for i := 0; i < n; i++ {
		line := gen.Next().String()
		if malformed > 0 && rng.Float64() < malformed {
			line = corruptions[rng.IntN(len(corruptions))](line)
			corrupted++
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return corrupted, err
		}
	}
	return corrupted, bw.Flush()
}

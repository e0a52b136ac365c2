package main

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/banshee-data/emgfes/internal/emg"
)

func TestWriteRecordsClean(t *testing.T) {
	var buf bytes.Buffer
	gen := emg.NewSynthetic(5, 750, 1.5, 1)
	corrupted, err := writeRecords(&buf, gen, 100, 0, rand.New(rand.NewPCG(1, 7)))
	if err != nil {
		t.Fatalf("writeRecords: %v", err)
	}
	if corrupted != 0 {
		t.Errorf("corrupted = %d, want 0", corrupted)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 100 {
		t.Fatalf("got %d lines, want 100", len(lines))
	}
	for i, l := range lines {
		if _, err := emg.ParseSample([]byte(l), 5); err != nil {
			t.Fatalf("line %d %q does not parse: %v", i, l, err)
		}
	}
}

func TestWriteRecordsCorrupts(t *testing.T) {
	var buf bytes.Buffer
	gen := emg.NewSynthetic(5, 750, 1.5, 1)
	corrupted, err := writeRecords(&buf, gen, 200, 1, rand.New(rand.NewPCG(1, 7)))
	if err != nil {
		t.Fatalf("writeRecords: %v", err)
	}
	if corrupted != 200 {
		t.Fatalf("corrupted = %d, want all 200", corrupted)
	}
	for i, l := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if _, err := emg.ParseSample([]byte(l), 5); !errors.Is(err, emg.ErrMalformed) {
			t.Errorf("line %d %q: err = %v, want ErrMalformed", i, l, err)
		}
	}
}

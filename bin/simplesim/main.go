package main

import (
	"context"
	"log"
	"math/rand"
	"runtime"
	"time"

	"github.com/parantapa/pansim"
)

func main() {
	seedOverride := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := pansim.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = seedOverride
	}

	model, err := pansim.LoadDiseaseModel(cfg.DiseaseModelFile)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	if err := pansim.RunSimplesim(context.Background(), cfg, model); err != nil {
		log.Fatal(err)
	}
	log.Printf("completed %d ticks in %s", cfg.NumTicks, time.Since(start))
}

package main

import (
	"context"
	"flag"
	"log"
	"runtime"
	"time"

	"github.com/parantapa/pansim"
)

func main() {
	nNodes := flag.Int("nodes", 1, "number of nodes")
	nCPUPerNode := flag.Int("cpus-per-node", runtime.NumCPU(), "number of cpus per node")
	flag.Parse()

	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := pansim.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	model, err := pansim.LoadDiseaseModel(cfg.DiseaseModelFile)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	if err := pansim.RunDistsim(context.Background(), cfg, model, *nNodes, *nCPUPerNode); err != nil {
		log.Fatal(err)
	}
	log.Printf("completed %d ticks across %d ranks in %s", cfg.NumTicks, *nNodes**nCPUPerNode, time.Since(start))
}

package main

import (
	"flag"
	"log"
	"strings"

	"github.com/parantapa/pansim"
)

func main() {
	nNodes := flag.Int("nodes", 1, "number of nodes")
	nCPUPerNode := flag.Int("cpus-per-node", 1, "number of cpus per node")
	lidOut := flag.String("lid-out", "lid_partition.csv", "output path for the location partition table")
	pidOut := flag.String("pid-out", "pid_partition.csv", "output path for the person partition table")
	attrs := flag.String("attrs", "", "comma-separated visual attribute names")
	flag.Parse()

	visitFiles := flag.Args()
	if len(visitFiles) == 0 {
		log.Fatal("usage: partition [flags] visit_file.csv [visit_file.csv ...]")
	}

	var attrNames []string
	if *attrs != "" {
		attrNames = strings.Split(*attrs, ",")
	}

	var visits []pansim.Visit
	for _, path := range visitFiles {
		f, err := pansim.LoadVisitScheduleFrame(path, attrNames)
		if err != nil {
			log.Fatalf("loading %s: %v", path, err)
		}
		visits = append(visits, f.Rows...)
	}

	lidTable, pidTable, err := pansim.Partition(visits, *nNodes, *nCPUPerNode)
	if err != nil {
		log.Fatalf("partitioning: %v", err)
	}

	if err := pansim.WritePartitionTable(*lidOut, "lid", lidTable); err != nil {
		log.Fatalf("writing %s: %v", *lidOut, err)
	}
	if err := pansim.WritePartitionTable(*pidOut, "pid", pidTable); err != nil {
		log.Fatalf("writing %s: %v", *pidOut, err)
	}

	log.Printf("partitioned %d locations and %d people across %d ranks", len(lidTable.Rows), len(pidTable.Rows), *nNodes**nCPUPerNode)
}

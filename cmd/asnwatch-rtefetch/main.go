package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"asnwatch/pkg/routeserver"
)

const version = "0.1.0"

type entryLine struct {
	Prefix string `json:"prefix"`
	ASN    string `json:"asn"`
}

func main() {
	host := flag.String("host", "", "Route-server host to query (required)")
	port := flag.Int("port", 23, "Route-server telnet port")
	asns := flag.String("asns", "", "Comma-separated list of ASNs to fetch (required)")
	cmdTemplate := flag.String("cmd-template", "show ip bgp regexp _%s$", "printf-style command template, one %s for the ASN")
	outputFile := flag.String("output", "", "Output file (JSONL format, default: stdout)")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout for the route-server session")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("asnwatch-rtefetch version %s\n", version)
		return
	}

	if *host == "" || *asns == "" {
		fmt.Fprintf(os.Stderr, "Usage: asnwatch-rtefetch -host <route-server> -asns <asn,asn,...> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var asnList []string
	for _, a := range strings.Split(*asns, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			asnList = append(asnList, a)
		}
	}
	if len(asnList) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: -asns must list at least one ASN\n")
		os.Exit(1)
	}

	var output *os.File
	if *outputFile == "" {
		output = os.Stdout
	} else {
		f, err := os.Create(*outputFile)
		if err != nil {
			log.Fatalf("ERROR: failed to create output file: %v", err)
		}
		defer f.Close()
		output = f
		log.Printf("INFO: writing to %s", *outputFile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("INFO: fetching prefixes for %v from %s", asnList, *host)
	tree, err := routeserver.Run(ctx, routeserver.Config{
		Host:        *host,
		Port:        *port,
		ASNs:        asnList,
		CmdTemplate: *cmdTemplate,
	})
	if err != nil {
		log.Fatalf("ERROR: route-server session against %s failed: %v", *host, err)
	}

	entries := tree.Entries()
	log.Printf("INFO: index built, %d prefixes, height %d", len(entries), tree.Height())

	w := bufio.NewWriter(output)
	defer w.Flush()
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(entryLine{Prefix: fmt.Sprintf("%s/%d", e.Prefix.Network, e.Prefix.Bits), ASN: e.ASN}); err != nil {
			log.Fatalf("ERROR: failed to write entry: %v", err)
		}
	}
}

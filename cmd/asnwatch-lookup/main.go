package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"asnwatch/pkg/prefixindex"
	"asnwatch/pkg/routeserver"
)

const version = "0.1.0"

type lookupResult struct {
	IP    string `json:"ip"`
	ASN   string `json:"asn,omitempty"`
	Found bool   `json:"found"`
}

func main() {
	host := flag.String("host", "", "Route-server host to query (required)")
	port := flag.Int("port", 23, "Route-server telnet port")
	asns := flag.String("asns", "", "Comma-separated list of ASNs to build the prefix index from (required)")
	cmdTemplate := flag.String("cmd-template", "show ip bgp regexp _%s$", "printf-style command template, one %s for the ASN")
	jsonOutput := flag.Bool("json", true, "Output as JSON")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout for the route-server session")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("asnwatch-lookup version %s\n", version)
		return
	}

	if flag.NArg() < 1 || *host == "" || *asns == "" {
		fmt.Fprintf(os.Stderr, "Usage: asnwatch-lookup -host <route-server> -asns <asn,asn,...> [options] <ip-address>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  asnwatch-lookup -host route-views.routeviews.org -asns 64512,64513 198.51.100.9\n")
		os.Exit(1)
	}

	ipStr := flag.Arg(0)
	ip, err := netip.ParseAddr(ipStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid IP address %q: %v\n", ipStr, err)
		os.Exit(1)
	}

	asnList := splitCSV(*asns)
	if len(asnList) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: -asns must list at least one ASN\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tree, err := routeserver.Run(ctx, routeserver.Config{
		Host:        *host,
		Port:        *port,
		ASNs:        asnList,
		CmdTemplate: *cmdTemplate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: route-server session against %s failed: %v\n", *host, err)
		os.Exit(1)
	}

	result := lookup(tree, ip)

	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: failed to marshal JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		printHumanReadable(result)
	}

	if !result.Found {
		os.Exit(1)
	}
}

func lookup(tree *prefixindex.Tree, ip netip.Addr) lookupResult {
	asn, ok := tree.Lookup(ip)
	return lookupResult{IP: ip.String(), ASN: asn, Found: ok}
}

func printHumanReadable(result lookupResult) {
	fmt.Printf("IP Address: %s\n", result.IP)
	if result.Found {
		fmt.Printf("ASN:        %s\n", result.ASN)
	} else {
		fmt.Printf("ASN:        not announced by any monitored ASN\n")
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(part, "AS")); err != nil {
			continue
		}
		out = append(out, part)
	}
	return out
}

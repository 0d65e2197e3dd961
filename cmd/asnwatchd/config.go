package main

import (
	"net/netip"

	"asnwatch/pkg/blocklist"
	"asnwatch/pkg/config"
	"asnwatch/pkg/orchestrator"
)

// buildOrchestratorConfig maps the decoded YAML file onto orchestrator.Config.
func buildOrchestratorConfig(file *config.File, sanityIP netip.Addr) orchestrator.Config {
	sources := make([]blocklist.Source, len(file.BlocklistSources))
	for i, s := range file.BlocklistSources {
		sources[i] = blocklist.Source{Org: s.Org, URL: s.URL}
	}

	rteServers := make([]orchestrator.RouteServerHost, len(file.RouteServers))
	for i, rs := range file.RouteServers {
		rteServers[i] = orchestrator.RouteServerHost{Host: rs.Host, Port: rs.Port}
	}

	return orchestrator.Config{
		BlocklistSources: sources,
		MonitoredASNs:    file.MonitoredASNs,
		UserAgent:        file.UserAgent,

		RouteServers:    rteServers,
		CmdTemplate:     file.CmdTemplate,
		NudgeInterval:   file.Throttles.NudgeInterval,
		PromptCountdown: file.Throttles.PromptCountdown,

		SanityIP:  sanityIP,
		SanityASN: file.SanityASN,

		RefreshBlkInterval: file.Intervals.RefreshBlk,
		RefreshIPInterval:  file.Intervals.RefreshIP,
		IPProbRetry:        file.Intervals.IPProbRetry,
		IPProbMax:          file.Intervals.IPProbMax,

		DNSMaxInFlight: file.Throttles.DNSMaxInFlight,
		CymruDelay:     file.Throttles.CymruDelay,

		WhoisHost:    file.WhoisHost,
		WhoisPort:    file.WhoisPort,
		WhoisSpacing: file.Throttles.WhoisSpacing,
		CymruMax:     file.Throttles.WhoisBatchCap,

		RecordDelim: file.RecordSep,
	}
}

// kube-medic is a self-healing agent for Kubernetes workloads.
//
// Usage:
//
//	kube-medic run                 # one monitor/decide/act cycle, prints JSON
//	kube-medic daemon              # cycle on an interval, serve /metrics, /mcp, /ws/incidents
//	kube-medic mcp                 # MCP tools over stdio
//	kube-medic incidents --since 24h
//	kube-medic restarts
package main

import "github.com/tinkerbelle-io/kube-medic/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}

package main

import (
	"kstratum/internal/boot"
	"kstratum/internal/devtree"
	"kstratum/internal/mm"
	"kstratum/internal/sched"
	"kstratum/internal/terminal"
)

// The four adapters below are the composition-root glue internal/terminal's
// doc comment anticipates: small wrappers satisfying its narrow provider
// interfaces so terminal itself never imports chunk/devtree/sched/boot.

type memInfoAdapter struct{ m *mm.Manager }

func (a memInfoAdapter) MemInfo() (uint64, uint64) { return a.m.MemInfo() }

type deviceTreeAdapter struct{ dt *devtree.DeviceTree }

func (a deviceTreeAdapter) ListPaths() []string {
	var paths []string
	a.dt.Walk(func(path, model string) { paths = append(paths, path) })
	return paths
}

type processAdapter struct{ sys *sched.SystemScheduler }

func (a processAdapter) ListProcesses() []terminal.ProcessInfo {
	snap := a.sys.Snapshot()
	out := make([]terminal.ProcessInfo, len(snap))
	for i, s := range snap {
		out[i] = terminal.ProcessInfo{Pid: s.Pid, Priority: s.Priority, Core: s.Core}
	}
	return out
}

type bootInfoAdapter struct{ info *boot.BootInfo }

func (a bootInfoAdapter) BootSummary() string {
	return a.info.LoaderName + ": " + a.info.CommandLine
}

// embeddedConsoleFont holds the TrueType font bytes for the framebuffer
// console (spec §2.10). No go:embed directive or other code fills it, so it
// is nil, terminal.NewFramebuffer fails to parse it, and KernelMain falls
// back to a terminal without a framebuffer.
var embeddedConsoleFont []byte

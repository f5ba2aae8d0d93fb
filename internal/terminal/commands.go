package terminal

import (
	"fmt"
	"strconv"
	"strings"
)

// cmdHelp lists the registered verbs (spec §6: help).
func cmdHelp(t *Terminal, args []string) string {
	return "commands: " + strings.Join(t.commandNames(), " ")
}

// cmdMeminfo reports total/free/used bytes from the chunk allocator (spec
// §6: meminfo).
func cmdMeminfo(t *Terminal, args []string) string {
	if t.MemInfo == nil {
		return "meminfo: not available"
	}
	total, free := t.MemInfo.MemInfo()
	return "total=" + strconv.FormatUint(total, 10) +
		" free=" + strconv.FormatUint(free, 10) +
		" used=" + strconv.FormatUint(total-free, 10)
}

// cmdLsTree lists every device path in the device tree (spec §6: lstree).
func cmdLsTree(t *Terminal, args []string) string {
	if t.DeviceTree == nil {
		return "lstree: not available"
	}
	return strings.Join(t.DeviceTree.ListPaths(), "\n")
}

// cmdPS lists every scheduled task across every core (spec §6: ps).
func cmdPS(t *Terminal, args []string) string {
	if t.Processes == nil {
		return "ps: not available"
	}
	var b strings.Builder
	b.WriteString("PID   PRI   CORE\n")
	for _, p := range t.Processes.ListProcesses() {
		fmt.Fprintf(&b, "%-5d %-5d %-5d\n", p.Pid, p.Priority, p.Core)
	}
	return b.String()
}

// cmdBootInfo reports the parsed boot-info record (spec §6: bootinfo).
func cmdBootInfo(t *Terminal, args []string) string {
	if t.Boot == nil {
		return "bootinfo: not available"
	}
	return t.Boot.BootSummary()
}

// cmdClear wipes the framebuffer console (spec §6: clear).
func cmdClear(t *Terminal, args []string) string {
	if t.fb != nil {
		t.fb.Clear()
	}
	return ""
}

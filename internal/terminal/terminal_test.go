package terminal

import (
	"strings"
	"testing"
)

type fakeMemInfo struct{ total, free uint64 }

func (f fakeMemInfo) MemInfo() (uint64, uint64) { return f.total, f.free }

type fakeDeviceTree struct{ paths []string }

func (f fakeDeviceTree) ListPaths() []string { return f.paths }

type fakeProcesses struct{ procs []ProcessInfo }

func (f fakeProcesses) ListProcesses() []ProcessInfo { return f.procs }

type fakeBootInfo struct{ summary string }

func (f fakeBootInfo) BootSummary() string { return f.summary }

func newTestTerminal() (*Terminal, *StreamBuffer) {
	stream := &StreamBuffer{}
	return New(stream, nil), stream
}

func TestHelpListsRegisteredCommands(t *testing.T) {
	term, stream := newTestTerminal()
	for _, c := range "help\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 256)
	n, _ := stream.Read(out)
	got := string(out[:n])
	for _, want := range []string{"help", "meminfo", "lstree", "ps", "bootinfo", "clear"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected help output to list %q, got %q", want, got)
		}
	}
}

func TestUnknownCommandReportsError(t *testing.T) {
	term, stream := newTestTerminal()
	for _, c := range "bogus\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 64)
	n, _ := stream.Read(out)
	if !strings.Contains(string(out[:n]), "unknown command: bogus") {
		t.Fatalf("expected unknown-command message, got %q", string(out[:n]))
	}
}

func TestBackspaceErasesLastCharacter(t *testing.T) {
	term, stream := newTestTerminal()
	for _, c := range "hela" {
		term.KeyPress(byte(c))
	}
	term.KeyPress(0x7F) // erase the stray 'a'
	term.KeyPress('p')
	term.KeyPress('\n')

	out := make([]byte, 256)
	n, _ := stream.Read(out)
	if !strings.Contains(string(out[:n]), "commands:") {
		t.Fatalf("expected 'help' command to run after backspace correction, got %q", string(out[:n]))
	}
}

func TestMeminfoReportsFromProvider(t *testing.T) {
	term, stream := newTestTerminal()
	term.MemInfo = fakeMemInfo{total: 1000, free: 400}
	for _, c := range "meminfo\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 128)
	n, _ := stream.Read(out)
	got := string(out[:n])
	if !strings.Contains(got, "total=1000") || !strings.Contains(got, "free=400") || !strings.Contains(got, "used=600") {
		t.Fatalf("unexpected meminfo output: %q", got)
	}
}

func TestMeminfoWithoutProviderReportsUnavailable(t *testing.T) {
	term, stream := newTestTerminal()
	for _, c := range "meminfo\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 64)
	n, _ := stream.Read(out)
	if !strings.Contains(string(out[:n]), "not available") {
		t.Fatalf("expected 'not available', got %q", string(out[:n]))
	}
}

func TestLsTreeListsProviderPaths(t *testing.T) {
	term, stream := newTestTerminal()
	term.DeviceTree = fakeDeviceTree{paths: []string{"/cpu/0", "/pci/0"}}
	for _, c := range "lstree\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 128)
	n, _ := stream.Read(out)
	got := string(out[:n])
	if !strings.Contains(got, "/cpu/0") || !strings.Contains(got, "/pci/0") {
		t.Fatalf("expected device paths listed, got %q", got)
	}
}

func TestPsListsProviderProcesses(t *testing.T) {
	term, stream := newTestTerminal()
	term.Processes = fakeProcesses{procs: []ProcessInfo{{Pid: 1, Priority: 2, Core: 0}}}
	for _, c := range "ps\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 128)
	n, _ := stream.Read(out)
	if !strings.Contains(string(out[:n]), "1") {
		t.Fatalf("expected pid 1 listed, got %q", string(out[:n]))
	}
}

func TestBootInfoReportsProviderSummary(t *testing.T) {
	term, stream := newTestTerminal()
	term.Boot = fakeBootInfo{summary: "cmdline=quiet"}
	for _, c := range "bootinfo\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 64)
	n, _ := stream.Read(out)
	if !strings.Contains(string(out[:n]), "cmdline=quiet") {
		t.Fatalf("expected boot summary echoed, got %q", string(out[:n]))
	}
}

func TestClearWithoutFramebufferIsNoOp(t *testing.T) {
	term, stream := newTestTerminal()
	for _, c := range "clear\n" {
		term.KeyPress(byte(c))
	}
	out := make([]byte, 16)
	n, _ := stream.Read(out)
	if string(out[:n]) != "\n" {
		t.Fatalf("expected clear to emit an empty line, got %q", string(out[:n]))
	}
}

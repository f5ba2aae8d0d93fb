package sched

import (
	"bytes"
	"testing"
)

type bufStream struct {
	bytes.Buffer
}

func TestDispatchWriteGoesToOutputStream(t *testing.T) {
	var stream bufStream
	tbl := NewTable(&stream)

	n := tbl.Dispatch(nil, SysWrite, 0, 0, 5, 0, 0, 0)
	if n != 5 {
		t.Fatalf("expected write to report 5 bytes, got %d", n)
	}
	if stream.Len() != 5 {
		t.Fatalf("expected 5 bytes written to the stream, got %d", stream.Len())
	}
}

func TestDispatchReadFromOutputStream(t *testing.T) {
	var stream bufStream
	stream.WriteString("hello")
	tbl := NewTable(&stream)

	n := tbl.Dispatch(nil, SysRead, 0, 0, 5, 0, 0, 0)
	if n != 5 {
		t.Fatalf("expected read to report 5 bytes, got %d", n)
	}
}

func TestDispatchWriteMovesRealBytesWhenIOBufPopulated(t *testing.T) {
	var stream bufStream
	tbl := NewTable(&stream)
	task := &Task{IOBuf: []byte("hi!!!")}

	n := tbl.Dispatch(task, SysWrite, 0, 0, 5, 0, 0, 0)
	if n != 5 {
		t.Fatalf("expected write to report 5 bytes, got %d", n)
	}
	if got := stream.String(); got != "hi!!!" {
		t.Fatalf("expected the task's actual buffer to reach the stream, got %q", got)
	}
}

func TestDispatchReadFillsTaskIOBuf(t *testing.T) {
	var stream bufStream
	stream.WriteString("hello")
	tbl := NewTable(&stream)
	task := &Task{IOBuf: make([]byte, 5)}

	n := tbl.Dispatch(task, SysRead, 0, 0, 5, 0, 0, 0)
	if n != 5 {
		t.Fatalf("expected read to report 5 bytes, got %d", n)
	}
	if got := string(task.IOBuf); got != "hello" {
		t.Fatalf("expected task.IOBuf to hold the real read bytes, got %q", got)
	}
}

func TestDispatchUnimplementedReturnsZero(t *testing.T) {
	var stream bufStream
	tbl := NewTable(&stream)

	if got := tbl.Dispatch(nil, 42, 0, 0, 0, 0, 0, 0); got != 0 {
		t.Fatalf("expected unimplemented syscall to return 0, got %d", got)
	}
	if got := tbl.Dispatch(nil, 9999, 0, 0, 0, 0, 0, 0); got != 0 {
		t.Fatalf("expected out-of-range syscall number to return 0, got %d", got)
	}
}

func TestDispatchOpenReturnsError(t *testing.T) {
	var stream bufStream
	tbl := NewTable(&stream)
	if got := tbl.Dispatch(nil, SysOpen, 0, 0, 0, 0, 0, 0); got >= 0 {
		t.Fatalf("expected open to fail (no filesystem), got %d", got)
	}
}

func TestDispatchCloseReturnsSuccess(t *testing.T) {
	var stream bufStream
	tbl := NewTable(&stream)
	if got := tbl.Dispatch(nil, SysClose, 3, 0, 0, 0, 0, 0); got != 0 {
		t.Fatalf("expected close to return 0, got %d", got)
	}
}

package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoRendersFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "chunk", nil)

	l.Info("got chunk", Hex("phys", 0x1000), Int("tier", 2))

	out := buf.String()
	if !strings.Contains(out, "[INFO] chunk: got chunk") {
		t.Fatalf("missing prefix/message: %q", out)
	}
	if !strings.Contains(out, "phys=0x1000") {
		t.Fatalf("missing hex field: %q", out)
	}
	if !strings.Contains(out, "tier=2") {
		t.Fatalf("missing int field: %q", out)
	}
}

func TestFatalCallsHalter(t *testing.T) {
	var buf bytes.Buffer
	halted := false
	l := New(&buf, "", func() { halted = true })

	l.Fatal("acpi checksum failed")

	if !halted {
		t.Fatal("expected halt to be invoked")
	}
	if !strings.Contains(buf.String(), "[FATAL]") {
		t.Fatalf("expected FATAL level in output: %q", buf.String())
	}
}

func TestFatalWithoutHalterDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", nil)
	l.Fatal("no halter configured")
}

package regfile

import "testing"

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestX0AlwaysZero(t *testing.T) {
	f := New(false)
	f.Write(X0, 0xdeadbeef)
	v, ok := f.Read(X0)
	assert(t, ok, "x0 read should always be ready")
	assert(t, v == 0, "x0 should read 0, got %#x", v)
}

func TestLockBlocksReadWithoutForwarding(t *testing.T) {
	f := New(false)
	f.Lock(X5)
	_, ok := f.Read(X5)
	assert(t, !ok, "locked register without forwarding should not be ready")
	f.Forward(X5, 42)
	_, ok = f.Read(X5)
	assert(t, !ok, "forwarding disabled: forwarded value must not be observed")
}

func TestForwardingUnblocksRead(t *testing.T) {
	f := New(true)
	f.Lock(X5)
	_, ok := f.Read(X5)
	assert(t, !ok, "locked register with no forwarded value yet should not be ready")
	f.Forward(X5, 42)
	v, ok := f.Read(X5)
	assert(t, ok, "forwarded value should be observable")
	assert(t, v == 42, "expected forwarded value 42, got %d", v)
}

func TestClearForwardingDropsStaleValue(t *testing.T) {
	f := New(true)
	f.Lock(X5)
	f.Forward(X5, 42)
	f.ClearForwarding()
	_, ok := f.Read(X5)
	assert(t, !ok, "forwarded value must not survive clear_forwarding")
}

func TestUnlockReleasesRead(t *testing.T) {
	f := New(false)
	f.Lock(X5)
	f.Write(X5, 7)
	f.Unlock(X5)
	v, ok := f.Read(X5)
	assert(t, ok, "unlocked register should be ready")
	assert(t, v == 7, "expected committed value 7, got %d", v)
}

func TestUnlockUnderflowPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on unlock underflow")
		}
	}()
	f := New(false)
	f.Unlock(X5)
}

func TestLookupABIName(t *testing.T) {
	id, ok := LookupABIName("a0")
	assert(t, ok, "expected to find a0")
	assert(t, id == X10, "a0 should be x10, got %d", id)

	id, ok = LookupABIName("SP")
	assert(t, ok, "lookup should be case-insensitive")
	assert(t, id == X2, "sp should be x2, got %d", id)

	_, ok = LookupABIName("bogus")
	assert(t, !ok, "unknown register name should not resolve")
}

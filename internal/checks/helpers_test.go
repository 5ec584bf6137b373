package checks

import (
	"testing"
	"time"
)

func waitResult(t *testing.T, ch <-chan Result) (Result, bool) {
	t.Helper()

	select {
	case res, ok := <-ch:
		return res, ok
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for check result")
		return Result{}, false
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

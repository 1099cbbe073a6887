package capture

import (
	"context"
	"testing"
	"time"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not end")
	}
}

func TestLinkedTabEndsWithRequest(t *testing.T) {
	tab, tabCancel := context.WithCancel(context.Background())
	defer tabCancel()
	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()

	linked, unlink := linkedTab(reqCtx, tab)
	defer unlink()

	select {
	case <-linked.Done():
		t.Fatal("linked context ended before either parent")
	default:
	}

	reqCancel()
	waitDone(t, linked)
}

func TestLinkedTabEndsWithTab(t *testing.T) {
	tab, tabCancel := context.WithCancel(context.Background())
	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()

	linked, unlink := linkedTab(reqCtx, tab)
	defer unlink()

	tabCancel()
	waitDone(t, linked)
}

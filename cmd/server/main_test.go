package main

import (
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
)

func TestDispatchPoolRejectsWhenSaturated(t *testing.T) {
	pool, err := newDispatchPool(1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Release()

	release := make(chan struct{})
	defer close(release)
	if err := pool.Submit(func() { <-release }); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- pool.Submit(func() {}) }()
	select {
	case err := <-done:
		if err != ants.ErrPoolOverload {
			t.Errorf("expected ErrPoolOverload, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a saturated pool")
	}
}

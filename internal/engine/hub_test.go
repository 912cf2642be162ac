package engine

import "testing"

func TestHubFanOut(t *testing.T) {
	h := newHub[int]()
	a, cancelA := h.subscribe()
	b, cancelB := h.subscribe()

	h.publish(1)
	cancelA()
	h.publish(2)
	cancelB()
	cancelB()

	var gotA, gotB []int
	for v := range a {
		gotA = append(gotA, v)
	}
	for v := range b {
		gotB = append(gotB, v)
	}
	if len(gotA) != 1 || gotA[0] != 1 {
		t.Errorf("a = %v, want [1]", gotA)
	}
	if len(gotB) != 2 {
		t.Errorf("b = %v, want [1 2]", gotB)
	}
	if h.len() != 0 {
		t.Errorf("len = %d after cancel", h.len())
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := newHub[int]()
	ch, cancel := h.subscribe()
	for i := 0; i < hubBuffer+10; i++ {
		h.publish(i)
	}
	cancel()

	n := 0
	for range ch {
		n++
	}
	if n != hubBuffer {
		t.Errorf("received %d, want %d", n, hubBuffer)
	}
}

package main

import (
	"strings"
	"sync"
	"testing"
)

// testNotifier records notices for assertions.
type testNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
	infos     []string
}

func (n *testNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *testNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *testNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *testNotifier) successCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes)
}

func (n *testNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func (n *testNotifier) hasSuccessContaining(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, msg := range n.successes {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func (n *testNotifier) hasErrorContaining(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, msg := range n.errors {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func TestNotifyRegistryFirstTime(t *testing.T) {
	r := NewNotifyRegistry()
	if !r.FirstTime("verificacion-form-new") {
		t.Fatal("first sighting should report true")
	}
	if r.FirstTime("verificacion-form-new") {
		t.Fatal("second sighting should report false")
	}
	if !r.FirstTime("verificacion-form-7") {
		t.Fatal("different key should report true")
	}
}

package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

func TestParseFitID(t *testing.T) {
	id := NewFitID()
	parsed, err := ParseFitID(" " + id.String() + " ")
	if err != nil {
		t.Fatalf("ParseFitID(%q) failed: %v", id, err)
	}
	if parsed != id {
		t.Errorf("Expected %s, got %s", id, parsed)
	}

	for _, bad := range []string{"", "   ", "not-a-uuid"} {
		if _, err := ParseFitID(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestComputeHash_SeparatesParts(t *testing.T) {
	if ComputeHash("ab", "c") == ComputeHash("a", "bc") {
		t.Error("Expected different hashes for different part boundaries")
	}
	if ComputeHash("x", "y") != ComputeHash("x", "y") {
		t.Error("Expected identical hashes for identical parts")
	}
}

func TestComputeMapHash_OrderIndependent(t *testing.T) {
	a := ComputeMapHash(map[string]string{"a": "1", "b": "2", "c": "3"})
	b := ComputeMapHash(map[string]string{"c": "3", "a": "1", "b": "2"})
	if a != b {
		t.Errorf("Map hash depends on iteration order: %s vs %s", a, b)
	}
}

func TestSpecificationErrors(t *testing.T) {
	err := NewUnknownColumnError("response", "count")
	if !IsInvalidSpecification(err) {
		t.Errorf("Expected %v to be an invalid specification", err)
	}
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Expected %v to wrap ErrUnknownColumn", err)
	}
	if !IsInvalidSpecification(ErrUnknownPriorClass) {
		t.Error("Expected unknown prior class to be an invalid specification")
	}
	if IsInvalidSpecification(ErrFitNotFound) {
		t.Error("Not-found errors must not be invalid specifications")
	}
	if !IsNotFoundError(ErrFitNotFound) {
		t.Error("Expected ErrFitNotFound to be a not-found error")
	}
}

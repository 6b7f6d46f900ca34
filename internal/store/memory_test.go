package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if errSet := s.Set(ctx, "k", []byte("v"), time.Minute); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	value, found, errGet := s.Get(ctx, "k")
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if !found || string(value) != "v" {
		t.Fatalf("got %q found=%v", value, found)
	}

	_, found, _ = s.Get(ctx, "missing")
	if found {
		t.Fatal("missing key reported found")
	}
}

func TestMemoryStoreTakeConsumesOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if errSet := s.Set(ctx, "challenge", []byte("data"), time.Minute); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	value, found, errTake := s.Take(ctx, "challenge")
	if errTake != nil {
		t.Fatalf("take: %v", errTake)
	}
	if !found || string(value) != "data" {
		t.Fatalf("got %q found=%v", value, found)
	}

	_, found, _ = s.Take(ctx, "challenge")
	if found {
		t.Fatal("second take returned the consumed value")
	}
	_, found, _ = s.Get(ctx, "challenge")
	if found {
		t.Fatal("taken value still readable")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if errSet := s.Set(ctx, "k", []byte("v"), 10*time.Millisecond); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	time.Sleep(25 * time.Millisecond)

	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("expired value still readable")
	}
	if _, found, _ := s.Take(ctx, "k"); found {
		t.Fatal("expired value still consumable")
	}
}

func TestMemoryStoreCopiesValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := []byte("data")
	if errSet := s.Set(ctx, "k", original, time.Minute); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	original[0] = 'X'

	value, _, _ := s.Get(ctx, "k")
	if string(value) != "data" {
		t.Fatalf("stored value mutated: %q", value)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	if errDelete := s.Delete(ctx, "k"); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("deleted value still readable")
	}
}

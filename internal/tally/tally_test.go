package tally

import "testing"

func TestAdjustLikesFloorsAtZero(t *testing.T) {
	s := &Stats{Likes: 0, Reposts: 0}
	s.AdjustLikes(-1, 100)
	if s.Likes != 0 {
		t.Errorf("Likes = %d, want 0 (floored)", s.Likes)
	}
	if s.LastUpdated != 100 {
		t.Errorf("LastUpdated = %d, want 100", s.LastUpdated)
	}
}

func TestLikeUnlikeRoundTrip(t *testing.T) {
	// Mirrors seed scenario 1: two creates, one delete, net +1.
	s := &Stats{}
	s.AdjustLikes(1, 10) // did:a create
	s.AdjustLikes(1, 20) // did:b create
	s.AdjustLikes(-1, 30) // did:a delete
	if s.Likes != 1 {
		t.Errorf("Likes = %d, want 1", s.Likes)
	}
	if s.Closed() {
		t.Errorf("expected entry to remain open with likes=1")
	}
}

func TestClosedWhenBothZero(t *testing.T) {
	s := &Stats{Likes: 1, Reposts: 0}
	s.AdjustLikes(-1, 5)
	if !s.Closed() {
		t.Errorf("expected Closed() once both counters reach zero")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := &Stats{Likes: 3, Reposts: 1, LastUpdated: 42, ID: 7}
	data, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if *got != *s {
		t.Errorf("Decode(Encode(s)) = %+v, want %+v", got, s)
	}
}

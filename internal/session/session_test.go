package session

import (
	"sync"
	"testing"
	"time"
)

func TestStore_GetSetReset(t *testing.T) {
	s := NewStore(time.Minute)

	if st := s.Get(1); st.Step != StepIdle {
		t.Fatalf("unknown chat step = %v; want idle", st.Step)
	}

	s.Set(1, State{Step: StepAwaitingReferencePhoto, Description: "CDMX to CUN"})
	st := s.Get(1)
	if st.Step != StepAwaitingReferencePhoto || st.Description != "CDMX to CUN" {
		t.Fatalf("state = %+v", st)
	}

	// Other chats are independent.
	if st := s.Get(2); st.Step != StepIdle {
		t.Fatalf("chat 2 step = %v; want idle", st.Step)
	}

	s.Reset(1)
	if st := s.Get(1); st.Step != StepIdle || st.Description != "" {
		t.Fatalf("state after reset = %+v", st)
	}
}

func TestStore_ExpiredReadsAsIdle(t *testing.T) {
	s := NewStore(time.Nanosecond)
	s.Set(1, State{Step: StepAwaitingProofPhoto, PaymentRequestID: 7})
	time.Sleep(time.Millisecond)

	if st := s.Get(1); st.Step != StepIdle || st.PaymentRequestID != 0 {
		t.Fatalf("expired state = %+v; want zero", st)
	}
}

func TestStore_OpportunisticEviction(t *testing.T) {
	s := NewStore(time.Minute)

	// Seed a stale entry directly.
	s.mu.Lock()
	s.m[99] = &State{Step: StepAwaitingDescription, lastSeen: time.Now().Add(-time.Hour)}
	s.writes = 999 // next Set triggers cleanup
	s.mu.Unlock()

	s.Set(1, State{Step: StepAwaitingDescription})

	s.mu.Lock()
	_, staleExists := s.m[99]
	_, freshExists := s.m[1]
	s.mu.Unlock()

	if staleExists {
		t.Fatal("stale entry should be evicted")
	}
	if !freshExists {
		t.Fatal("fresh entry should survive cleanup")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Set(chat, State{Step: StepAwaitingDescription})
				_ = s.Get(chat)
				s.Reset(chat)
			}
		}(int64(i % 4))
	}
	wg.Wait()
}

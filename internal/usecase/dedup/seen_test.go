package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestSeenSet(t *testing.T) {
	set := NewSeenSet()

	if set.Seen("48213_+2250701112233_Whatsapp") {
		t.Fatalf("ключ не должен быть помечен до MarkSeen")
	}

	set.MarkSeen("48213_+2250701112233_Whatsapp")
	if !set.Seen("48213_+2250701112233_Whatsapp") {
		t.Fatalf("ключ должен быть помечен после MarkSeen")
	}

	// Повторная пометка идемпотентна.
	set.MarkSeen("48213_+2250701112233_Whatsapp")
	if set.Len() != 1 {
		t.Fatalf("ожидали 1 ключ, получили %d", set.Len())
	}

	if set.Seen("другой") {
		t.Fatalf("посторонний ключ не должен быть помечен")
	}
}

func TestSeenSetConcurrent(t *testing.T) {
	set := NewSeenSet()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d_%d", n%4, j)
				set.Seen(key)
				set.MarkSeen(key)
			}
		}(i)
	}
	wg.Wait()

	if set.Len() != 400 {
		t.Fatalf("ожидали 400 ключей, получили %d", set.Len())
	}
}

package dedup

import "sync"

// SeenSet хранит ключи уже отправленных OTP на время жизни процесса.
// Набор только растёт: объём ограничен количеством OTP за одну сессию,
// поэтому вытеснение не требуется.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSeenSet создаёт пустой набор.
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

// Seen сообщает, отправлялся ли уже OTP с таким ключом.
func (s *SeenSet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// MarkSeen помечает ключ отправленным. Повторная пометка безвредна.
func (s *SeenSet) MarkSeen(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// Len возвращает количество помеченных ключей.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

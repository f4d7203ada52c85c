package betting

import "sync"

// Arena mantém um Book por rodada. Só a rodada corrente aceita apostas.
type Arena struct {
	mu      sync.RWMutex
	books   map[string]*Book
	current *Book
}

func NewArena() *Arena {
	return &Arena{books: make(map[string]*Book)}
}

// Open cria o Book da rodada e o torna corrente
func (a *Arena) Open(roundID string) *Book {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := newBook(roundID)
	a.books[roundID] = b
	a.current = b
	return b
}

// Current retorna o Book corrente (pode já estar fechado)
func (a *Arena) Current() (*Book, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.current != nil
}

func (a *Arena) Get(roundID string) (*Book, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.books[roundID]
	return b, ok
}

// Close fecha o Book da rodada e retorna suas apostas
func (a *Arena) Close(roundID string) []Bet {
	b, ok := a.Get(roundID)
	if !ok {
		return nil
	}
	return b.close()
}

// Retire descarta o Book depois da liquidação
func (a *Arena) Retire(roundID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.books, roundID)
	if a.current != nil && a.current.roundID == roundID {
		a.current = nil
	}
}

package dice

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
)

var ErrOverrideOutOfRange = errors.New("override dice must be between 1 and 6")

// Source devolve um valor de face em [1,6]
type Source func() int

// CryptoSource usa crypto/rand; é o padrão em produção
func CryptoSource() int {
	n, err := rand.Int(rand.Reader, big.NewInt(6))
	if err != nil {
		panic("dice: crypto source unavailable: " + err.Error())
	}
	return int(n.Int64()) + 1
}

// Resolver rola três dados, ou consome um override previamente registrado
type Resolver struct {
	mu       sync.Mutex
	source   Source
	override *[3]int
}

func NewResolver(src Source) *Resolver {
	if src == nil {
		src = CryptoSource
	}
	return &Resolver{source: src}
}

// Stage registra os dados da próxima resolução. Valores fora de 1..6 são rejeitados aqui
// e o override anterior (se houver) permanece.
func (r *Resolver) Stage(d [3]int) error {
	for _, v := range d {
		if v < 1 || v > 6 {
			return ErrOverrideOutOfRange
		}
	}
	r.mu.Lock()
	r.override = &d
	r.mu.Unlock()
	return nil
}

// Staged informa se há override pendente
func (r *Resolver) Staged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override != nil
}

// Roll resolve a rodada. O override é consumido (limpo) em qualquer caso.
func (r *Resolver) Roll() (round.Outcome, bool) {
	r.mu.Lock()
	staged := r.override
	r.override = nil
	r.mu.Unlock()

	if staged != nil {
		return round.NewOutcome(*staged), true
	}
	return round.NewOutcome([3]int{r.source(), r.source(), r.source()}), false
}

package command

import (
	"errors"

	"github.com/radieske/dice-round-platform/internal/game-service/dice"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Reason traduz um erro de comando no motivo explícito devolvido ao apostador.
// Erros desconhecidos viram "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, round.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, round.ErrConflictingOption):
		return "conflicting_option"
	case errors.Is(err, round.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, round.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, round.ErrNotFound):
		return "not_found"
	case errors.Is(err, dice.ErrOverrideOutOfRange):
		return "override_out_of_range"
	case errors.Is(err, scheduler.ErrInvalidSettings):
		return "invalid_config"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "internal"
	}
}

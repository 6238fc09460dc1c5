package orders

import (
	"fmt"
	"slices"
	"strings"

	"petpet/apperr"
	"petpet/models"
)

// Transitions is the table of legal admin status moves. A status with no
// entry is terminal.
type Transitions map[models.OrderStatus][]models.OrderStatus

// ParseTransitions builds the table from status names, as found in config.
func ParseTransitions(raw map[string][]string) (Transitions, error) {
	t := make(Transitions, len(raw))
	for from, tos := range raw {
		f, err := models.ParseOrderStatus(from)
		if err != nil {
			return nil, fmt.Errorf("transition source %q: %w", from, err)
		}
		for _, to := range tos {
			s, err := models.ParseOrderStatus(to)
			if err != nil {
				return nil, fmt.Errorf("transition target %q: %w", to, err)
			}
			if s == f {
				return nil, fmt.Errorf("transition %s -> %s: status cannot move to itself", f, s)
			}
			if !slices.Contains(t[f], s) {
				t[f] = append(t[f], s)
			}
		}
		slices.Sort(t[f])
	}
	return t, nil
}

func (t Transitions) Allowed(from, to models.OrderStatus) bool {
	return slices.Contains(t[from], to)
}

// Check returns InvalidTransition naming the allowed targets when the move
// from -> to is not in the table.
func (t Transitions) Check(from, to models.OrderStatus) error {
	if t.Allowed(from, to) {
		return nil
	}
	targets := t[from]
	if len(targets) == 0 {
		return apperr.Newf(apperr.InvalidTransition, "Order is %s and can no longer change status", from)
	}
	names := make([]string, len(targets))
	for i, s := range targets {
		names[i] = s.String()
	}
	return apperr.E(apperr.InvalidTransition,
		fmt.Sprintf("Cannot move order from %s to %s", from, to),
		"allowed: "+strings.Join(names, ", "))
}

// releasesStock reports whether entering s gives the ordered goods back.
func releasesStock(s models.OrderStatus) bool {
	return s == models.StatusWithdrawn || s == models.StatusRejected
}

package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Rhymond/go-money"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
)

// EntryKind is the direction of a ledger movement.
type EntryKind string

const (
	KindIn  EntryKind = "in"
	KindOut EntryKind = "out"
)

// EntryInput is the payload for AddEntry. Amount is always positive; Kind
// decides the sign.
type EntryInput struct {
	Kind   EntryKind       `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Desc   string          `json:"desc"`
}

// Validate implements validation.Validatable.
func (in EntryInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Kind, validation.Required, validation.In(KindIn, KindOut)),
		validation.Field(&in.Amount, validation.By(positive)),
		validation.Field(&in.Desc, validation.Length(0, 200)),
	)
}

func positive(v any) error {
	d, _ := v.(decimal.Decimal)
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

// Finance returns the ledger, newest entry first.
func (s *Service) Finance(_ context.Context) models.Finance {
	f := localstore.Get(s.store, models.KeyFinance, models.DefaultFinance())
	f.Log = nonNilSlice(f.Log)
	return f
}

// AddEntry records an income or expense and adjusts the balance.
func (s *Service) AddEntry(ctx context.Context, in EntryInput) (models.Entry, error) {
	in.Desc = cleanText(in.Desc)
	if err := in.Validate(); err != nil {
		return models.Entry{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	amount := in.Amount.Round(2)
	desc := in.Desc
	if in.Kind == KindOut {
		amount = amount.Neg()
		if desc == "" {
			desc = "Saída"
		}
	} else if desc == "" {
		desc = "Entrada"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Finance(ctx)
	e := models.Entry{ID: newID("f"), Amount: amount, Desc: desc, Date: s.now().UTC()}
	f.Balance = f.Balance.Add(amount)
	f.Log = slices.Insert(f.Log, 0, e)
	if err := s.store.Set(models.KeyFinance, f); err != nil {
		return models.Entry{}, fmt.Errorf("tracker: add entry: %w", err)
	}
	return e, nil
}

// DeleteEntry removes an entry and reverts its effect on the balance.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Finance(ctx)
	i := slices.IndexFunc(f.Log, func(e models.Entry) bool { return e.ID == id })
	if i < 0 {
		return apperr.ErrNotFound
	}
	f.Balance = f.Balance.Sub(f.Log[i].Amount)
	f.Log = slices.Delete(f.Log, i, i+1)
	if err := s.store.Set(models.KeyFinance, f); err != nil {
		return fmt.Errorf("tracker: delete entry: %w", err)
	}
	return nil
}

var brl = func() *money.Formatter {
	c := money.GetCurrency(money.BRL)
	return money.NewFormatter(c.Fraction, c.Decimal, c.Thousand, c.Grapheme, "$ 1")
}()

// FormatMoney renders an amount in Brazilian reais, e.g. "R$ 1.234,56".
func FormatMoney(d decimal.Decimal) string {
	return brl.Format(d.Shift(2).Round(0).IntPart())
}

package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"funnel_backend/internals/features/funnel/plans/model"
)

var (
	// ErrNoPlan means no plan could be derived from the query or the session.
	ErrNoPlan = errors.New("plan: no plan selected")
	// ErrInvalidAmount means the variable plan was chosen without a usable amount.
	ErrInvalidAmount = errors.New("plan: invalid amount for variable plan")
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// Resolve derives the plan view. query wins over stored, field by field.
// devAccess relaxes the "a plan must resolve" precondition by falling back
// to model.DefaultPlan.
func Resolve(query, stored model.Selection, devAccess bool) (model.PlanInfo, model.Selection, error) {
	sel := merge(query, stored)

	plan, ok := model.FindPlan(sel.Plan)
	if !ok {
		if !devAccess {
			if sel.Plan == "" {
				return model.PlanInfo{}, sel, ErrNoPlan
			}
			return model.PlanInfo{}, sel, fmt.Errorf("%w: unknown plan %q", ErrNoPlan, sel.Plan)
		}
		plan, _ = model.FindPlan(model.DefaultPlan)
		sel.Plan = plan.ID
	}

	per := model.Periodicity(sel.Periodicity)
	if !per.Valid() {
		per = model.PeriodicityMonthly
	}
	sel.Periodicity = string(per)

	monthly := plan.MonthlyBase
	if plan.Variable {
		if sel.Amount < model.PlatinumMinimum {
			return model.PlanInfo{}, sel, fmt.Errorf("%w: %.2f", ErrInvalidAmount, sel.Amount)
		}
		monthly = sel.Amount
	} else {
		sel.Amount = 0
	}

	return Build(plan, per, monthly), sel, nil
}

// Build computes the cycle total and display for a plan.
func Build(plan model.Plan, per model.Periodicity, monthly float64) model.PlanInfo {
	total := round2(monthly * float64(per.Multiplier()))
	return model.PlanInfo{
		ID:           plan.ID,
		Name:         plan.Name,
		Periodicity:  per,
		MonthlyBase:  monthly,
		Value:        total,
		DisplayValue: FormatBRL(total) + per.Suffix(),
	}
}

// Table lists every fixed plan in every periodicity; the variable plan is shown at its minimum.
func Table() []model.PlanInfo {
	out := make([]model.PlanInfo, 0, len(model.Catalog)*len(model.Periodicities))
	for _, p := range model.Catalog {
		monthly := p.MonthlyBase
		if p.Variable {
			monthly = model.PlatinumMinimum
		}
		for _, per := range model.Periodicities {
			out = append(out, Build(p, per, monthly))
		}
	}
	return out
}

// FormatBRL renders "R$ 1.234,50".
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}

// ParseAmount accepts "50", "50.5" and "50,50". Empty input yields 0.
func ParseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return v, nil
}

func merge(query, stored model.Selection) model.Selection {
	out := stored
	if p := strings.ToLower(strings.TrimSpace(query.Plan)); p != "" {
		out.Plan = p
	} else {
		out.Plan = strings.ToLower(strings.TrimSpace(out.Plan))
	}
	if p := strings.ToLower(strings.TrimSpace(query.Periodicity)); p != "" {
		out.Periodicity = p
	}
	if query.Amount > 0 {
		out.Amount = query.Amount
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

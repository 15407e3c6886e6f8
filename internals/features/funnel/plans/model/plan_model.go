package model

/* ===================== Periodicity ===================== */

type Periodicity string

const (
	PeriodicityMonthly    Periodicity = "mensal"
	PeriodicityQuarterly  Periodicity = "trimestral"
	PeriodicitySemiannual Periodicity = "semestral"
	PeriodicityAnnual     Periodicity = "anual"
)

// Periodicities in display order.
var Periodicities = []Periodicity{
	PeriodicityMonthly,
	PeriodicityQuarterly,
	PeriodicitySemiannual,
	PeriodicityAnnual,
}

// Multiplier is the number of months billed per cycle.
func (p Periodicity) Multiplier() int {
	switch p {
	case PeriodicityQuarterly:
		return 3
	case PeriodicitySemiannual:
		return 6
	case PeriodicityAnnual:
		return 12
	default:
		return 1
	}
}

// Suffix is appended to the display value, e.g. "/trimestre".
func (p Periodicity) Suffix() string {
	switch p {
	case PeriodicityQuarterly:
		return "/trimestre"
	case PeriodicitySemiannual:
		return "/semestre"
	case PeriodicityAnnual:
		return "/ano"
	default:
		return "/mês"
	}
}

func (p Periodicity) Valid() bool {
	switch p {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicitySemiannual, PeriodicityAnnual:
		return true
	}
	return false
}

/* ===================== Price table ===================== */

const (
	PlanEssencial     = "essencial"
	PlanApoiador      = "apoiador"
	PlanTransformador = "transformador"
	PlanPlatinum      = "platinum"

	// DefaultPlan is used for developer access when nothing else resolves.
	DefaultPlan = PlanApoiador

	// PlatinumMinimum is the smallest monthly amount accepted for the variable plan.
	PlatinumMinimum = 10.0
)

type Plan struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// MonthlyBase in BRL; zero for the variable plan.
	MonthlyBase float64 `json:"monthly_base"`
	Variable    bool    `json:"variable"`
}

var Catalog = []Plan{
	{ID: PlanEssencial, Name: "Essencial", MonthlyBase: 30},
	{ID: PlanApoiador, Name: "Apoiador", MonthlyBase: 60},
	{ID: PlanTransformador, Name: "Transformador", MonthlyBase: 120},
	{ID: PlanPlatinum, Name: "Platinum", Variable: true},
}

func FindPlan(id string) (Plan, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

/* ===================== Derived view ===================== */

// PlanInfo is the read-only view of the selected plan for one billing cycle.
type PlanInfo struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Periodicity  Periodicity `json:"periodicity"`
	MonthlyBase  float64     `json:"monthly_base"`
	Value        float64     `json:"value"`
	DisplayValue string      `json:"display_value"`
}

func (p PlanInfo) IsZero() bool { return p.ID == "" }

// Selection is the raw plan input, as it arrives in the query or is kept by a session.
type Selection struct {
	Plan        string  `json:"plan,omitempty"`
	Periodicity string  `json:"periodicity,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

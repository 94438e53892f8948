package users

import "fmt"

type Plan string

const (
	PlanFree         Plan = "free"
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanBusiness     Plan = "business"
)

// monthlyLimits mirrors the pricing page. They are advertised, not enforced:
// the daily quota counter applies the same ceiling to every plan.
var monthlyLimits = map[Plan]int{
	PlanFree:         5,
	PlanBasic:        50,
	PlanProfessional: 200,
	PlanBusiness:     500,
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := monthlyLimits[p]; !ok {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return p, nil
}

// MonthlyLimit returns the advertised images per month, falling back to the
// free tier for unknown plans.
func (p Plan) MonthlyLimit() int {
	if n, ok := monthlyLimits[p]; ok {
		return n
	}
	return monthlyLimits[PlanFree]
}

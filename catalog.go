package main

import (
	"sort"
	"strings"
	"time"
)

const (
	roleFallback  = "Outros"
	roleSlugAll   = "todos"
	notSpecified  = "Não especificado"
	shortIDLength = 8
)

type ExamSummary struct {
	ID            string     `json:"id"`
	ShortID       string     `json:"shortId"`
	Name          string     `json:"nome_prova"`
	Role          string     `json:"cargo"`
	Organization  string     `json:"organizadora"`
	Year          string     `json:"ano"`
	QuestionCount int        `json:"total_questoes"`
	ProcessedRaw  string     `json:"data_processamento"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	ProcessedDate string     `json:"processedDate,omitempty"` // dd/mm/yyyy
}

func (e *Exam) Summary() ExamSummary {
	s := ExamSummary{
		ID:            e.ID,
		ShortID:       ShortID(e.ID),
		Name:          e.Name,
		Role:          e.Role,
		Organization:  e.Organization,
		Year:          e.Year,
		QuestionCount: e.QuestionCount,
		ProcessedRaw:  e.ProcessedRaw,
		ProcessedAt:   e.ProcessedAt,
	}
	if e.ProcessedAt != nil {
		s.ProcessedDate = e.ProcessedAt.Format("02/01/2006")
	}
	return s
}

type CatalogFilter struct {
	Search       string
	Organization string
	Role         string
	Year         string
	RoleSlug     string
}

// FilterExams keeps the exams matching every non-empty criterion, in input order.
func FilterExams(exams []ExamSummary, f CatalogFilter) []ExamSummary {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]ExamSummary, 0, len(exams))
	for _, e := range exams {
		if term != "" &&
			!strings.Contains(strings.ToLower(e.Name), term) &&
			!strings.Contains(strings.ToLower(e.Role), term) &&
			!strings.Contains(strings.ToLower(e.Organization), term) {
			continue
		}
		if f.Organization != "" && e.Organization != f.Organization {
			continue
		}
		if f.Role != "" && e.Role != f.Role {
			continue
		}
		if f.Year != "" && e.Year != f.Year {
			continue
		}
		if f.RoleSlug != "" && f.RoleSlug != roleSlugAll && RoleSlug(roleOrFallback(e.Role)) != f.RoleSlug {
			continue
		}
		out = append(out, e)
	}
	return out
}

type RoleGroup struct {
	Role  string        `json:"cargo"`
	Slug  string        `json:"slug"`
	Icon  string        `json:"icon"`
	Count int           `json:"count"`
	Exams []ExamSummary `json:"provas"`
}

// GroupByRole buckets exams by role, largest group first.
func GroupByRole(exams []ExamSummary) []RoleGroup {
	index := map[string]int{}
	groups := []RoleGroup{}
	for _, e := range exams {
		role := roleOrFallback(e.Role)
		i, ok := index[role]
		if !ok {
			i = len(groups)
			index[role] = i
			groups = append(groups, RoleGroup{Role: role, Slug: RoleSlug(role), Icon: RoleIcon(role)})
		}
		groups[i].Exams = append(groups[i].Exams, e)
		groups[i].Count++
	}
	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].Count != groups[b].Count {
			return groups[a].Count > groups[b].Count
		}
		return groups[a].Role < groups[b].Role
	})
	return groups
}

type FilterOptionSet struct {
	Organizations []string `json:"organizadoras"`
	Roles         []string `json:"cargos"`
	Years         []string `json:"anos"`
}

func FilterOptions(exams []ExamSummary) FilterOptionSet {
	orgs := map[string]struct{}{}
	roles := map[string]struct{}{}
	years := map[string]struct{}{}
	for _, e := range exams {
		orgs[e.Organization] = struct{}{}
		roles[e.Role] = struct{}{}
		years[e.Year] = struct{}{}
	}
	return FilterOptionSet{
		Organizations: optionList(orgs),
		Roles:         optionList(roles),
		Years:         optionList(years),
	}
}

func optionList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		if v == "" || v == notSpecified {
			continue
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// RoleSlug replaces every character outside [a-zA-Z0-9] with "_" and lower-cases.
func RoleSlug(role string) string {
	var b strings.Builder
	for _, r := range role {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var roleIcons = []struct {
	keyword string
	icon    string
}{
	{"ADMINISTRATIVO", "📊"},
	{"SAÚDE", "🏥"},
	{"EDUCAÇÃO", "🎓"},
	{"TI", "💻"},
	{"JURÍDICO", "⚖️"},
	{"ENGENHARIA", "🔧"},
	{"CONTÁBEIS", "📈"},
}

const defaultRoleIcon = "📁"

func RoleIcon(role string) string {
	upper := strings.ToUpper(role)
	for _, ri := range roleIcons {
		if strings.Contains(upper, ri.keyword) {
			return ri.icon
		}
	}
	return defaultRoleIcon
}

func ShortID(id string) string {
	return truncate(id, shortIDLength)
}

func roleOrFallback(role string) string {
	if role == "" {
		return roleFallback
	}
	return role
}

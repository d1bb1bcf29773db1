package testkit

import (
	"context"
	"math"
	"math/rand"

	"gosegment/domain/segmentation"
)

// SurveyGeneratorConfig configures the synthetic survey
type SurveyGeneratorConfig struct {
	Respondents int   `json:"respondents"`
	Seed        int64 `json:"seed"`
}

// DefaultSurveyConfig returns the survey used by the stub service
func DefaultSurveyConfig() SurveyGeneratorConfig {
	return SurveyGeneratorConfig{Respondents: 400, Seed: 42}
}

// Survey is a generated respondent-level dataset.
type Survey struct {
	Variables    []segmentation.Variable
	Numeric      map[string][]float64
	Demographics map[string][]string
	N            int
}

type numericSpec struct {
	variable segmentation.Variable
	min, max float64
	round    bool
	noise    float64
}

var numericSpecs = []numericSpec{
	{segmentation.Variable{Name: "q1_satisfaction", Label: "Overall satisfaction", Type: segmentation.TypeNumeric, Subtype: "likert"}, 1, 5, true, 0.6},
	{segmentation.Variable{Name: "q2_value", Label: "Value for money", Type: segmentation.TypeNumeric, Subtype: "likert"}, 1, 5, true, 0.7},
	{segmentation.Variable{Name: "q3_recommend", Label: "Likelihood to recommend", Type: segmentation.TypeNumeric, Subtype: "scale"}, 0, 10, true, 1.2},
	{segmentation.Variable{Name: "q4_monthly_spend", Label: "Monthly spend", Type: segmentation.TypeNumeric, Subtype: "continuous"}, 0, 500, false, 30},
	{segmentation.Variable{Name: "q5_visits", Label: "Visits per month", Type: segmentation.TypeNumeric, Subtype: "integer"}, 0, 30, true, 2},
	{segmentation.Variable{Name: "q6_trust", Label: "Trust in brand", Type: segmentation.TypeNumeric, Subtype: "likert"}, 1, 5, true, 0.6},
}

type categoricalSpec struct {
	variable   segmentation.Variable
	categories []string
}

var categoricalSpecs = []categoricalSpec{
	{segmentation.Variable{Name: "region", Label: "Region", Type: segmentation.TypeCategorical, Subtype: "nominal"},
		[]string{"North", "South", "East", "West", "Central", "Islands"}},
	{segmentation.Variable{Name: "age_band", Label: "Age band", Type: segmentation.TypeCategorical, Subtype: "single_choice"},
		[]string{"18-24", "25-34", "35-44", "45-54", "55+"}},
	{segmentation.Variable{Name: "plan", Label: "Plan", Type: segmentation.TypeCategorical, Subtype: "nominal"},
		[]string{"Basic", "Plus", "Premium"}},
}

var textVariable = segmentation.Variable{Name: "open_comments", Label: "Comments", Type: segmentation.TypeText}

// archetype holds per-variable means and demographic weights of one latent segment.
type archetype struct {
	weight  float64
	means   []float64
	demoTop []int // preferred category index per categorical variable
}

var archetypes = []archetype{
	{weight: 0.4, means: []float64{4.4, 4.0, 9, 180, 12, 4.5}, demoTop: []int{0, 1, 2}},
	{weight: 0.35, means: []float64{2.2, 1.8, 3, 60, 3, 2.0}, demoTop: []int{1, 4, 0}},
	{weight: 0.25, means: []float64{3.3, 4.3, 6, 320, 7, 3.1}, demoTop: []int{3, 2, 1}},
}

// GenerateSurvey draws a deterministic survey from three latent segments.
func GenerateSurvey(config SurveyGeneratorConfig) *Survey {
	if config.Respondents <= 0 {
		config.Respondents = DefaultSurveyConfig().Respondents
	}
	rng := rand.New(rand.NewSource(config.Seed))

	s := &Survey{
		Numeric:      make(map[string][]float64, len(numericSpecs)),
		Demographics: make(map[string][]string, len(categoricalSpecs)),
		N:            config.Respondents,
	}
	for _, spec := range numericSpecs {
		s.Variables = append(s.Variables, spec.variable)
		s.Numeric[spec.variable.Name] = make([]float64, config.Respondents)
	}
	for _, spec := range categoricalSpecs {
		s.Variables = append(s.Variables, spec.variable)
		s.Demographics[spec.variable.Name] = make([]string, config.Respondents)
	}
	s.Variables = append(s.Variables, textVariable)

	for i := 0; i < config.Respondents; i++ {
		a := pickArchetype(rng)
		for j, spec := range numericSpecs {
			v := a.means[j] + rng.NormFloat64()*spec.noise
			v = math.Max(spec.min, math.Min(spec.max, v))
			if spec.round {
				v = math.Round(v)
			}
			s.Numeric[spec.variable.Name][i] = v
		}
		for j, spec := range categoricalSpecs {
			idx := a.demoTop[j]
			if rng.Float64() > 0.55 {
				idx = rng.Intn(len(spec.categories))
			}
			s.Demographics[spec.variable.Name][i] = spec.categories[idx]
		}
	}
	return s
}

func pickArchetype(rng *rand.Rand) archetype {
	r := rng.Float64()
	for _, a := range archetypes {
		if r < a.weight {
			return a
		}
		r -= a.weight
	}
	return archetypes[len(archetypes)-1]
}

// ListVariables makes a Survey usable as a variable catalog.
func (s *Survey) ListVariables(ctx context.Context) ([]segmentation.Variable, error) {
	return append([]segmentation.Variable(nil), s.Variables...), nil
}

// Variable returns the metadata of name.
func (s *Survey) Variable(name string) (segmentation.Variable, bool) {
	for _, v := range s.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return segmentation.Variable{}, false
}

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// perturbation is the relative nudge applied to each feature when estimating
// the confidence interval.
const perturbation = 0.05

// TreeEnsemble evaluates a gradient-boosted tree model saved with XGBoost's
// JSON format (Booster.save_model("*.json")). columns maps each model
// feature to its index in domain.FeatureVector.
type TreeEnsemble struct {
	trees      []tree
	baseMargin float64
	logistic   bool
	columns    []int
	names      []string
	importance map[string]float64
}

// tree holds one regression tree in XGBoost's flat array layout. mean is the
// cover-weighted expected output of each node, used for path attribution.
type tree struct {
	left, right []int
	feature     []int
	threshold   []float64
	defaultLeft []bool
	mean        []float64
}

// LoadTreeEnsemble reads a model file from disk.
func LoadTreeEnsemble(path string) (*TreeEnsemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return ParseTreeEnsemble(data)
}

// ParseTreeEnsemble decodes an XGBoost JSON model. Feature names must be a
// subset of domain.FeatureNames; when absent the model is assumed to use the
// leading columns in order.
func ParseTreeEnsemble(data []byte) (*TreeEnsemble, error) {
	var doc xgbDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	l := doc.Learner
	if l.GradientBooster.Name != "" && l.GradientBooster.Name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", l.GradientBooster.Name)
	}
	if len(l.GradientBooster.Model.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	m := &TreeEnsemble{baseMargin: base}
	switch obj := l.Objective.Name; {
	case obj == "binary:logistic", obj == "reg:logistic":
		m.logistic = true
		m.baseMargin = logit(base)
	case obj == "", strings.HasPrefix(obj, "reg:"):
	default:
		return nil, fmt.Errorf("unsupported objective %q", obj)
	}

	if err := m.bindColumns(l.FeatureNames, l.LearnerModelParam.NumFeature); err != nil {
		return nil, err
	}

	splits := make([]float64, len(m.names))
	for i, raw := range l.GradientBooster.Model.Trees {
		t, err := raw.build(len(m.names))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for n, f := range t.feature {
			if t.left[n] != -1 {
				splits[f]++
			}
		}
		m.trees = append(m.trees, t)
	}
	m.importance = normalize(m.names, splits)
	return m, nil
}

func (m *TreeEnsemble) bindColumns(names []string, numFeature string) error {
	index := make(map[string]int, len(domain.FeatureNames))
	for i, n := range domain.FeatureNames {
		index[n] = i
	}

	if len(names) == 0 {
		n := len(domain.FeatureNames)
		if numFeature != "" {
			v, err := strconv.Atoi(numFeature)
			if err != nil {
				return fmt.Errorf("parse num_feature: %w", err)
			}
			n = v
		}
		if n > len(domain.FeatureNames) {
			return fmt.Errorf("model expects %d features, only %d available", n, len(domain.FeatureNames))
		}
		names = domain.FeatureNames[:n]
	}

	m.names = make([]string, len(names))
	m.columns = make([]int, len(names))
	for i, n := range names {
		col, ok := index[n]
		if !ok {
			return fmt.Errorf("model feature %q is not produced by the feature pipeline", n)
		}
		m.names[i] = n
		m.columns[i] = col
	}
	return nil
}

// FeatureNames lists the model's input features in model order.
func (m *TreeEnsemble) FeatureNames() []string { return m.names }

// Importance returns normalized split counts per feature.
func (m *TreeEnsemble) Importance() map[string]float64 { return m.importance }

// Score implements Scorer.
func (m *TreeEnsemble) Score(ctx context.Context, in Input) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{}, err
	}
	x := m.project(domain.FeatureVector(in.Request, in.At))
	score := m.Predict(x)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Score{}, errors.New("model produced a non-finite score")
	}

	out := Score{RiskScore: score, Method: MethodTree}
	if !in.Explain {
		out.Interval = domain.SymmetricInterval(score, HeuristicInterval)
		return out, nil
	}

	out.Interval = m.interval(x, score)
	_, contrib := m.Contributions(x)
	attribution := make(map[string]float64, len(contrib))
	for i, v := range contrib {
		attribution[m.names[i]] = v
	}
	out.Explanation = &domain.Explanation{
		Method:             MethodTree,
		FeatureAttribution: attribution,
		FeatureImportance:  m.importance,
	}
	return out, nil
}

// Predict returns the 0–100 risk score for a model-ordered feature row.
func (m *TreeEnsemble) Predict(x []float64) float64 {
	margin := m.baseMargin
	for i := range m.trees {
		margin += m.trees[i].leafValue(x)
	}
	return m.toScore(margin)
}

// Contributions attributes the margin to features by walking each decision
// path and crediting the split feature with the change in expected value.
// bias plus the sum of contributions equals the raw margin.
func (m *TreeEnsemble) Contributions(x []float64) (bias float64, contrib []float64) {
	contrib = make([]float64, len(m.names))
	bias = m.baseMargin
	for i := range m.trees {
		t := &m.trees[i]
		node := 0
		bias += t.mean[0]
		for t.left[node] != -1 {
			next := t.next(node, x)
			contrib[t.feature[node]] += t.mean[next] - t.mean[node]
			node = next
		}
	}
	return bias, contrib
}

// interval is score ± 1.96σ, where σ is taken over predictions with each
// feature nudged up and down by perturbation.
func (m *TreeEnsemble) interval(x []float64, score float64) domain.ConfidenceInterval {
	samples := make([]float64, 0, 2*len(x))
	row := make([]float64, len(x))
	for i := range x {
		for _, f := range []float64{1 + perturbation, 1 - perturbation} {
			copy(row, x)
			row[i] = x[i] * f
			samples = append(samples, m.Predict(row))
		}
	}
	sigma := stat.StdDev(samples, nil)
	return domain.SymmetricInterval(score, 1.96*sigma)
}

func (m *TreeEnsemble) project(full []float64) []float64 {
	x := make([]float64, len(m.columns))
	for i, col := range m.columns {
		x[i] = full[col]
	}
	return x
}

func (m *TreeEnsemble) toScore(margin float64) float64 {
	if m.logistic {
		return domain.ClampScore(100 / (1 + math.Exp(-margin)))
	}
	return domain.ClampScore(margin)
}

func (t *tree) next(node int, x []float64) int {
	v := x[t.feature[node]]
	switch {
	case math.IsNaN(v):
		if t.defaultLeft[node] {
			return t.left[node]
		}
		return t.right[node]
	case v < t.threshold[node]:
		return t.left[node]
	default:
		return t.right[node]
	}
}

func (t *tree) leafValue(x []float64) float64 {
	node := 0
	for t.left[node] != -1 {
		node = t.next(node, x)
	}
	return t.threshold[node]
}

// XGBoost JSON schema, restricted to what evaluation needs.

type xgbDocument struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []xgbTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flags     `json:"default_left"`
	SumHessian      []float64 `json:"sum_hessian"`
}

func (raw xgbTree) build(numFeatures int) (tree, error) {
	n := len(raw.LeftChildren)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(raw.RightChildren) != n || len(raw.SplitIndices) != n || len(raw.SplitConditions) != n {
		return tree{}, errors.New("node arrays differ in length")
	}
	defaultLeft := []bool(raw.DefaultLeft)
	if len(defaultLeft) == 0 {
		defaultLeft = make([]bool, n)
	}
	if len(defaultLeft) != n {
		return tree{}, errors.New("default_left length mismatch")
	}

	for i := range n {
		l, r := raw.LeftChildren[i], raw.RightChildren[i]
		if l == -1 {
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children", i)
		}
		if f := raw.SplitIndices[i]; f < 0 || f >= numFeatures {
			return tree{}, fmt.Errorf("node %d splits on unknown feature %d", i, f)
		}
	}

	t := tree{
		left:        raw.LeftChildren,
		right:       raw.RightChildren,
		feature:     raw.SplitIndices,
		threshold:   raw.SplitConditions,
		defaultLeft: defaultLeft,
		mean:        make([]float64, n),
	}
	cover := raw.SumHessian
	if len(cover) != n {
		cover = nil
	}
	// Children always have higher indices, so a reverse sweep sees them first.
	for i := n - 1; i >= 0; i-- {
		l, r := t.left[i], t.right[i]
		if l == -1 {
			t.mean[i] = t.threshold[i]
			continue
		}
		wl, wr := 1.0, 1.0
		if cover != nil && cover[l]+cover[r] > 0 {
			wl, wr = cover[l], cover[r]
		}
		t.mean[i] = (wl*t.mean[l] + wr*t.mean[r]) / (wl + wr)
	}
	return t, nil
}

// flags accepts default_left encoded as booleans or 0/1 integers.
type flags []bool

func (f *flags) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		switch s := string(bytes.TrimSpace(v)); s {
		case "true", "1":
			out[i] = true
		case "false", "0":
		default:
			return fmt.Errorf("invalid default_left value %s", s)
		}
	}
	*f = out
	return nil
}

// parseBaseScore handles "5E-1" as well as the bracketed "[5E-1]" form
// written by newer XGBoost releases.
func parseBaseScore(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return 0, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse base_score: %w", err)
	}
	return v, nil
}

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-12), 1-1e-12)
	return math.Log(p / (1 - p))
}

func normalize(names []string, counts []float64) map[string]float64 {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	out := make(map[string]float64, len(names))
	for i, n := range names {
		if total > 0 {
			out[n] = counts[i] / total
		} else {
			out[n] = 0
		}
	}
	return out
}

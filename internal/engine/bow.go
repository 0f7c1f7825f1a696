package engine

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"nlud/pkg/types"
)

const (
	defaultEpochs    = 10
	defaultBatchSize = 32
	biasFeature      = "\x00bias"
)

// bowNet is a multi-class perceptron over bag-of-words features.
type bowNet struct {
	lang    string
	epochs  int
	batch   int
	Weights map[string]map[string]float64 `json:"weights"`
	Classes []string                      `json:"classes"`
}

func newBowNet(lang string, epochs, batch int) *bowNet {
	if epochs <= 0 {
		epochs = defaultEpochs
	}
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &bowNet{lang: lang, epochs: epochs, batch: batch, Weights: map[string]map[string]float64{}}
}

// BowFactory returns a NetFactory for the bag-of-words backend.
func BowFactory(epochs, batch int) NetFactory {
	return func(lang string) Net { return newBowNet(lang, epochs, batch) }
}

type featSample struct {
	label string
	feats []string
}

func (n *bowNet) Train(ctx context.Context, samples []Sample, progress func(float64)) error {
	data := make([]featSample, 0, len(samples))
	for _, s := range samples {
		n.addClass(s.Intent)
		data = append(data, featSample{label: s.Intent, feats: features(s.Text)})
	}
	total := n.epochs * len(data)
	if total == 0 {
		if progress != nil {
			progress(1)
		}
		return ctx.Err()
	}
	seen := 0
	for epoch := 0; epoch < n.epochs; epoch++ {
		for start := 0; start < len(data); start += n.batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+n.batch, len(data))
			for _, s := range data[start:end] {
				n.update(s)
			}
			seen += end - start
			if progress != nil {
				progress(float64(seen) / float64(total))
			}
		}
	}
	return nil
}

func (n *bowNet) addClass(label string) {
	if _, ok := n.Weights[label]; ok {
		return
	}
	n.Weights[label] = map[string]float64{}
	n.Classes = append(n.Classes, label)
	sort.Strings(n.Classes)
}

// update applies one perceptron step on a misclassified sample.
func (n *bowNet) update(s featSample) {
	pred := n.argmax(s.feats)
	if pred == s.label {
		return
	}
	for _, f := range s.feats {
		n.Weights[s.label][f]++
		if pred != "" {
			n.Weights[pred][f]--
		}
	}
}

func (n *bowNet) score(label string, feats []string) float64 {
	w := n.Weights[label]
	sum := 0.0
	for _, f := range feats {
		sum += w[f]
	}
	return sum
}

func (n *bowNet) argmax(feats []string) string {
	best, bestScore := "", math.Inf(-1)
	for _, c := range n.Classes {
		if s := n.score(c, feats); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func (n *bowNet) Predict(text string) []types.IntentPrediction {
	if len(n.Classes) == 0 {
		return []types.IntentPrediction{}
	}
	feats := features(text)
	scores := make([]float64, len(n.Classes))
	maxScore := math.Inf(-1)
	for i, c := range n.Classes {
		scores[i] = n.score(c, feats)
		maxScore = math.Max(maxScore, scores[i])
	}
	sum := 0.0
	for i := range scores {
		scores[i] = math.Exp(scores[i] - maxScore)
		sum += scores[i]
	}
	out := make([]types.IntentPrediction, len(n.Classes))
	for i, c := range n.Classes {
		out[i] = types.IntentPrediction{Label: c, Confidence: scores[i] / sum}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (n *bowNet) Labels() []string { return append([]string(nil), n.Classes...) }

func (n *bowNet) Marshal() ([]byte, error) { return json.Marshal(n) }

func (n *bowNet) Unmarshal(b []byte) error {
	var tmp bowNet
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	if tmp.Weights == nil {
		tmp.Weights = map[string]map[string]float64{}
	}
	for _, c := range tmp.Classes {
		if _, ok := tmp.Weights[c]; !ok {
			return errInvalidModel("class %q has no weights", c)
		}
	}
	n.Weights, n.Classes = tmp.Weights, tmp.Classes
	return nil
}

func (n *bowNet) Clone() Net {
	c := newBowNet(n.lang, n.epochs, n.batch)
	for label, w := range n.Weights {
		cw := make(map[string]float64, len(w))
		for k, v := range w {
			cw[k] = v
		}
		c.Weights[label] = cw
	}
	c.Classes = append([]string(nil), n.Classes...)
	return c
}

func features(text string) []string {
	return append(tokenize(text), biasFeature)
}

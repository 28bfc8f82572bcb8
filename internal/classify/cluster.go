package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/local/newsdigest/internal/article"
)

// Clusterer groups articles into topics with TF-IDF vectors and DBSCAN over
// cosine distance.
type Clusterer struct {
	Eps         float64
	MinSamples  int
	MaxFeatures int
}

// DefaultClusterer uses eps 0.5, two samples per cluster and 1000 features.
func DefaultClusterer() Clusterer {
	return Clusterer{Eps: 0.5, MinSamples: 2, MaxFeatures: 1000}
}

func shortID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Assign returns one topic id per article: cluster_<n> for clustered
// articles, noise_<hex> for the rest and unique_<hex> for all of them when
// clustering fails.
func (c Clusterer) Assign(ctx context.Context, articles []article.Candidate) []string {
	ids := make([]string, len(articles))
	labels, err := c.labels(articles)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clustering failed, treating articles as unique")
		for i := range ids {
			ids[i] = shortID("unique_")
		}
		return ids
	}
	for i, l := range labels {
		if l < 0 {
			ids[i] = shortID("noise_")
		} else {
			ids[i] = fmt.Sprintf("cluster_%d", l)
		}
	}
	return ids
}

func (c Clusterer) labels(articles []article.Candidate) (labels []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clustering panic: %v", r)
		}
	}()
	if c.Eps <= 0 || c.MinSamples < 1 {
		return nil, fmt.Errorf("invalid clustering parameters eps=%v min_samples=%d", c.Eps, c.MinSamples)
	}
	if len(articles) < 2 {
		labels = make([]int, len(articles))
		for i := range labels {
			labels[i] = -1
		}
		return labels, nil
	}
	docs := make([]string, len(articles))
	for i, a := range articles {
		docs[i] = a.Headline + " " + a.Body
	}
	vecs := tfidf(docs, c.MaxFeatures)
	return dbscan(vecs, c.Eps, c.MinSamples), nil
}

// tokenize lower-cases text and splits it into runs of letters, marks and
// digits of at least two runes, dropping English stop words.
func tokenize(text string) []string {
	text = cases.Fold().String(text)
	var out []string
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r))
	}) {
		if len([]rune(tok)) < 2 || stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// sparse is an L2-normalised term vector.
type sparse map[int]float64

// tfidf builds smoothed, L2-normalised TF-IDF vectors over the maxFeatures
// most frequent terms.
func tfidf(docs []string, maxFeatures int) []sparse {
	counts := make([]map[string]int, len(docs))
	total := map[string]int{}
	df := map[string]int{}
	for i, d := range docs {
		counts[i] = map[string]int{}
		for _, t := range tokenize(d) {
			counts[i][t]++
			total[t]++
		}
		for t := range counts[i] {
			df[t]++
		}
	}

	terms := make([]string, 0, len(total))
	for t := range total {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(a, b int) bool {
		if total[terms[a]] != total[terms[b]] {
			return total[terms[a]] > total[terms[b]]
		}
		return terms[a] < terms[b]
	})
	if maxFeatures > 0 && len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	vocab := make(map[string]int, len(terms))
	for i, t := range terms {
		vocab[t] = i
	}

	n := float64(len(docs))
	vecs := make([]sparse, len(docs))
	for i, cnt := range counts {
		v := sparse{}
		var norm float64
		for t, tf := range cnt {
			j, ok := vocab[t]
			if !ok {
				continue
			}
			w := float64(tf) * (math.Log((1+n)/(1+float64(df[t]))) + 1)
			v[j] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range v {
				v[j] /= norm
			}
		}
		vecs[i] = v
	}
	return vecs
}

// cosineDistance of two normalised vectors; empty vectors are at distance 1.
func cosineDistance(a, b sparse) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for j, x := range a {
		dot += x * b[j]
	}
	d := 1 - dot
	if d < 0 {
		d = 0
	}
	return d
}

// dbscan labels points with cluster numbers from 0 in discovery order; -1 is
// noise. A point's neighbourhood includes the point itself.
func dbscan(points []sparse, eps float64, minSamples int) []int {
	const unvisited = -2
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	neighbours := func(i int) []int {
		var out []int
		for j := range points {
			if cosineDistance(points[i], points[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		nb := neighbours(i)
		if len(nb) < minSamples {
			labels[i] = -1
			continue
		}
		labels[i] = cluster
		queue := append([]int(nil), nb...)
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == -1 {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if jn := neighbours(j); len(jn) >= minSamples {
				queue = append(queue, jn...)
			}
		}
		cluster++
	}
	return labels
}

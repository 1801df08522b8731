// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package logics

import (
	"context"
	"sort"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/common/ann"
	"github.com/gorse-io/newsrec/common/floats"
	"github.com/gorse-io/newsrec/config"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/model/svd"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// epsilon guards the normalization of content scores.
const epsilon = 1e-8

// cfCheckInterval is the number of items scored between two checks of the context.
const cfCheckInterval = 4096

// FactorSource provides latent factors of an interaction matrix.
type FactorSource interface {
	Factors(ctx context.Context, m *dataset.Interactions) (*svd.Factors, error)
}

// Recommender blends collaborative filtering scores, content similarity and contextual boosts. It is immutable
// after construction and safe for concurrent use.
type Recommender struct {
	cfg          config.RecommendConfig
	items        []dataset.Item
	positions    map[int32]int
	interactions *dataset.Interactions
	factors      *svd.Factors
	publishers   *PreferenceIndex
	categories   *PreferenceIndex
	index        ann.Index
	dimension    int
	popularity   *Popularity
	minCreatedAt int64
	maxCreatedAt int64
}

type candidate struct {
	position int
	score    float32
}

// NewRecommender builds the interaction matrix, latent factors, preference indices, the similarity index and
// the popularity table. Clicks must carry the category and publisher of the clicked item.
func NewRecommender(ctx context.Context, items []dataset.Item, clicks []dataset.Click, factors FactorSource,
	cfg config.RecommendConfig) (*Recommender, error) {
	start := time.Now()
	if len(items) == 0 {
		return nil, errors.NotValidf("empty items")
	}
	r := &Recommender{
		cfg:          cfg,
		items:        items,
		positions:    make(map[int32]int, len(items)),
		minCreatedAt: items[0].CreatedAt,
		maxCreatedAt: items[0].CreatedAt,
	}
	for i, item := range items {
		if _, exist := r.positions[item.ItemId]; exist {
			return nil, errors.NotValidf("duplicate item %d", item.ItemId)
		}
		r.positions[item.ItemId] = i
		r.minCreatedAt = min(r.minCreatedAt, item.CreatedAt)
		r.maxCreatedAt = max(r.maxCreatedAt, item.CreatedAt)
	}

	// collaborative filtering
	var err error
	r.interactions, err = dataset.NewInteractions(clicks)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.factors, err = factors.Factors(ctx, r.interactions)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = validateFactors(r.factors, r.interactions); err != nil {
		return nil, errors.Trace(err)
	}

	// content
	index, err := ann.NewBruteforce(lo.Map(items, func(item dataset.Item, _ int) []float32 {
		return item.Embedding
	}), cfg.Jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.index, r.dimension = index, index.Dimension()
	r.publishers = NewPreferenceIndex(clicks, PublisherAttribute)
	r.categories = NewPreferenceIndex(clicks, CategoryAttribute)
	r.popularity = NewPopularity(items, clicks, cfg.PopularityCeiling)

	numUsers, numItems := r.interactions.Shape()
	log.Logger().Info("build recommender",
		zap.Int("n_items", len(items)),
		zap.Int("n_clicks", len(clicks)),
		zap.Int("n_users", numUsers),
		zap.Int("n_clicked_items", numItems),
		zap.Int("rank", r.factors.Rank),
		zap.Duration("duration", time.Since(start)))
	return r, nil
}

func validateFactors(factors *svd.Factors, m *dataset.Interactions) error {
	rows, cols := m.Shape()
	if len(factors.UserFactors) != rows || len(factors.ItemFactors) != cols {
		return errors.NotValidf("latent factors (%d users, %d items) for a %dx%d matrix",
			len(factors.UserFactors), len(factors.ItemFactors), rows, cols)
	}
	for _, matrix := range [][][]float32{factors.UserFactors, factors.ItemFactors} {
		for i, row := range matrix {
			if len(row) != factors.Rank {
				return errors.NotValidf("latent factor %d of length %d (rank %d)", i, len(row), factors.Rank)
			}
		}
	}
	return nil
}

// Popular returns the k most popular items.
func (r *Recommender) Popular(k int) []Recommendation {
	return r.popularity.TopK(k)
}

// NumUsers returns the number of rows of the interaction matrix.
func (r *Recommender) NumUsers() int {
	numUsers, _ := r.interactions.Shape()
	return numUsers
}

func (r *Recommender) NumItems() int {
	return len(r.items)
}

// IsColdStart checks whether a user has no clicks and is served popular items.
func (r *Recommender) IsColdStart(userId int32) bool {
	history, _ := r.interactions.Row(userId)
	return len(history) == 0
}

// Recommend returns at most k items for a user, scores descending. Users without clicks get popular items.
// Collaborative filtering scores are computed on another goroutine while content candidates are retrieved and
// boosted, unless sequential mode is configured.
func (r *Recommender) Recommend(ctx context.Context, userId int32, k int) ([]Recommendation, error) {
	if k <= 0 {
		return []Recommendation{}, nil
	}
	history, weights := r.interactions.Row(userId)
	if len(history) == 0 {
		return r.popularity.TopK(k), nil
	}
	userFactor := r.factors.UserFactors[userId]

	var (
		cfScores []float32
		group    *errgroup.Group
	)
	scoreCF := func(ctx context.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("collaborative filtering panicked: %v", p)
			}
		}()
		if r.cfg.CFTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.CFTimeout)
			defer cancel()
		}
		cfScores, err = r.scoreCF(ctx, userFactor)
		return
	}
	if r.cfg.Sequential {
		if err := scoreCF(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		var groupCtx context.Context
		group, groupCtx = errgroup.WithContext(ctx)
		group.Go(func() error { return scoreCF(groupCtx) })
	}

	candidates := r.retrieve(history, weights, k)
	r.boost(userId, history, candidates)

	if group != nil {
		if err := group.Wait(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	for i := range candidates {
		itemId := r.items[candidates[i].position].ItemId
		if itemId >= 0 && int(itemId) < len(cfScores) {
			candidates[i].score += cfScores[itemId]
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	candidates = candidates[:min(k, len(candidates))]
	return lo.Map(candidates, func(c candidate, _ int) Recommendation {
		return Recommendation{Item: r.items[c.position], Score: float64(c.score)}
	}), nil
}

// scoreCF computes the inner product of every item factor with the user factor, min-max scaled to [0, cf_scale].
// All scores are 0 if they are equal.
func (r *Recommender) scoreCF(ctx context.Context, userFactor []float32) ([]float32, error) {
	scores := make([]float32, len(r.factors.ItemFactors))
	for i, itemFactor := range r.factors.ItemFactors {
		if i%cfCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Trace(err)
			}
		}
		scores[i] = floats.Dot(itemFactor, userFactor)
	}
	if len(scores) == 0 {
		return scores, nil
	}
	minScore, maxScore := floats.MinMax(scores)
	if maxScore == minScore {
		floats.Zero(scores)
		return scores, nil
	}
	for i := range scores {
		scores[i] = r.cfg.CFScale * (scores[i] - minScore) / (maxScore - minScore)
	}
	return scores, nil
}

// retrieve searches items similar to the weighted mean embedding of history and drops clicked items. The content
// score is content_scale * similarity / max |similarity|.
func (r *Recommender) retrieve(history []int32, weights []float32, k int) []candidate {
	mean := make([]float32, r.dimension)
	var total float32
	for i, itemId := range history {
		position, ok := r.positions[itemId]
		if !ok {
			continue
		}
		floats.MulConstAdd(r.items[position].Embedding, weights[i], mean)
		total += weights[i]
	}
	if total > 0 {
		floats.MulConst(mean, 1/total)
	}

	clicked := mapset.NewThreadUnsafeSet(history...)
	// k beyond the number of items retrieves every item
	positions, similarities := r.index.Search(mean, r.cfg.CandidateFactor*min(k, r.index.Len()))
	candidates := make([]candidate, 0, len(positions))
	var maxAbs float32
	for i, position := range positions {
		if clicked.Contains(r.items[position].ItemId) {
			continue
		}
		candidates = append(candidates, candidate{position: int(position), score: similarities[i]})
		maxAbs = math32.Max(maxAbs, math32.Abs(similarities[i]))
	}
	for i := range candidates {
		candidates[i].score = r.cfg.ContentScale * candidates[i].score / (maxAbs + epsilon)
	}
	return candidates
}

// boost adds preference, word length and recency bonuses to candidates.
func (r *Recommender) boost(userId int32, history []int32, candidates []candidate) {
	if len(candidates) == 0 {
		return
	}
	// mean word count of clicked items
	var words float32
	var n int
	for _, itemId := range history {
		if position, ok := r.positions[itemId]; ok {
			words += float32(r.items[position].WordsCount)
			n++
		}
	}
	if n > 0 {
		words /= float32(n)
	}
	var maxDiff float32
	for _, c := range candidates {
		maxDiff = math32.Max(maxDiff, math32.Abs(float32(r.items[c.position].WordsCount)-words))
	}

	for i := range candidates {
		item := r.items[candidates[i].position]
		if r.publishers.Contains(userId, item.PublisherId) {
			candidates[i].score += r.cfg.PublisherBoost
		}
		if r.categories.Contains(userId, item.CategoryId) {
			candidates[i].score += r.cfg.CategoryBoost
		}
		if maxDiff > 0 {
			candidates[i].score += 1 - math32.Abs(float32(item.WordsCount)-words)/maxDiff
		}
		if r.maxCreatedAt > r.minCreatedAt {
			age := float32(float64(item.CreatedAt-r.maxCreatedAt) / float64(r.maxCreatedAt-r.minCreatedAt))
			candidates[i].score += math32.Exp(r.cfg.RecencyDecay * age)
		}
	}
}

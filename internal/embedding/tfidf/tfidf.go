package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"parasim/internal/domain"
)

// Embedder implements a simple TF-IDF vectorizer.
// The vocabulary and IDF values are fitted on the texts of each Embed call,
// so every request is self-contained and nothing is kept between requests.
type Embedder struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Embed fits a vocabulary on texts and returns one L2-normalized vector per text.
// Texts without any token embed to the zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, errors.New("tfidf: no texts to embed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokenized := make([][]string, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		tokens := e.tokenize(text)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		// Nothing to weigh: every text is the zero vector and scores 0.
		out := make([]domain.Vector, len(texts))
		for i := range out {
			out[i] = make(domain.Vector, 1)
		}
		return out, nil
	}
	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for i, term := range terms {
		vocabulary[term] = i
		// Smoothed IDF
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	out := make([]domain.Vector, len(texts))
	for i, tokens := range tokenized {
		out[i] = vectorize(tokens, vocabulary, idf)
	}
	return out, nil
}

func vectorize(tokens []string, vocabulary map[string]int, idf []float64) domain.Vector {
	vec := make(domain.Vector, len(idf))
	if len(tokens) == 0 {
		return vec
	}
	tf := make(map[int]int)
	for _, tok := range tokens {
		if idx, ok := vocabulary[tok]; ok {
			tf[idx]++
		}
	}
	total := float64(len(tokens))
	for idx, count := range tf {
		vec[idx] = float64(count) / total * idf[idx]
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

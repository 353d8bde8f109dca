// Package ml provides the fixed multilingual text encoder backing the
// vector index. The model is deterministic: the same text always maps to the
// same L2-normalized 384-dimensional vector, in any language.
package ml

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

// Dimensions is the embedding width of the mini multilingual transformer.
const Dimensions = 384

// cacheCapacity bounds the advisory exact-text LRU.
const cacheCapacity = 10000

var punctuationRegex = regexp.MustCompile(`([.!?,:;()[\]{}'""])`)

// EmbeddingModel encodes arbitrary text to unit vectors. Safe for
// concurrent use.
type EmbeddingModel struct {
	logger *logrus.Logger
	folder cases.Caser

	mu    sync.Mutex
	cache *lruCache
}

func NewEmbeddingModel(logger *logrus.Logger) *EmbeddingModel {
	return &EmbeddingModel{
		logger: logger,
		folder: cases.Fold(),
		cache:  newLRUCache(cacheCapacity),
	}
}

// Encode returns the unit embedding of text. Empty or whitespace-only input
// yields the zero vector, which callers treat as "no embedding".
func (m *EmbeddingModel) Encode(text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return make([]float32, Dimensions)
	}

	m.mu.Lock()
	if cached, ok := m.cache.get(text); ok {
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	tokens := m.tokenize(text)
	embedding := m.generate(text, tokens)
	normalized := l2Normalize(embedding)

	m.mu.Lock()
	m.cache.put(text, normalized)
	m.mu.Unlock()

	return normalized
}

// EncodeBatch encodes texts in one pass, preserving order.
func (m *EmbeddingModel) EncodeBatch(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.Encode(text)
	}
	return out
}

// tokenize performs a simplified WordPiece-style tokenization. Unicode input
// is NFKC-normalized and case-folded first so that multilingual text yields
// stable tokens.
func (m *EmbeddingModel) tokenize(text string) []string {
	text = norm.NFKC.String(text)
	text = m.folder.String(text)
	text = strings.TrimSpace(text)
	text = punctuationRegex.ReplaceAllString(text, " $1 ")

	words := strings.Fields(text)

	var tokens []string
	for _, word := range words {
		if len(word) > 6 && !isPunctuation(word) {
			tokens = append(tokens, subwordTokenize(word)...)
		} else {
			tokens = append(tokens, word)
		}
	}

	result := []string{"[CLS]"}
	result = append(result, tokens...)
	result = append(result, "[SEP]")
	return result
}

func isPunctuation(s string) bool {
	const punctuation = ".!?,:;()[]{}'\""
	return len(s) == 1 && strings.Contains(punctuation, s)
}

func subwordTokenize(word string) []string {
	if len(word) <= 4 {
		return []string{word}
	}

	var tokens []string
	for i := 0; i < len(word); {
		end := i + 4
		if end > len(word) {
			end = len(word)
		}

		// Extend to a vowel boundary when one is close.
		if end < len(word) && end-i < 6 {
			limit := i + 6
			if limit > len(word) {
				limit = len(word)
			}
			for j := end; j < limit; j++ {
				if isVowel(rune(word[j])) {
					end = j
					break
				}
			}
		}

		token := word[i:end]
		if i > 0 {
			token = "##" + token // WordPiece continuation marker
		}
		tokens = append(tokens, token)
		i = end
	}
	return tokens
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouAEIOU", r)
}

// generate builds the raw embedding from a content hash, token-level
// features, length features and a positional component.
func (m *EmbeddingModel) generate(text string, tokens []string) []float32 {
	embedding := make([]float32, Dimensions)

	hasher := sha256.New()
	hasher.Write([]byte(text))
	hash := hasher.Sum(nil)

	textLength := float32(len(text))
	tokenCount := float32(len(tokens))
	avgTokenLength := textLength / tokenCount

	for i := 0; i < Dimensions; i++ {
		hashComponent := (float32(hash[i%len(hash)])/255.0 - 0.5) * 0.4
		tokenComponent := tokenFeature(tokens, i) * 0.3

		lengthComponent := (textLength/100.0 - 0.5) * 0.2
		if i%4 == 0 {
			lengthComponent *= avgTokenLength / 10.0
		}

		posComponent := float32(0.1 * (float64(i)/float64(Dimensions) - 0.5))

		value := hashComponent + tokenComponent + lengthComponent + posComponent

		var noiseBytes []byte
		noiseBytes = fmt.Appendf(noiseBytes, "%s_%d", text, i)
		noiseHash := sha256.Sum256(noiseBytes)
		noise := (float32(noiseHash[0])/255.0 - 0.5) * 0.05

		embedding[i] = value + noise
	}

	return embedding
}

// tokenFeature extracts a per-dimension feature from the token stream.
func tokenFeature(tokens []string, dimension int) float32 {
	if len(tokens) == 0 {
		return 0
	}

	var feature float32

	switch dimension % 8 {
	case 0: // Punctuation density
		count := 0
		for _, token := range tokens {
			if isPunctuation(token) {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 1: // Average token length
		total := 0
		for _, token := range tokens {
			total += len(token)
		}
		feature = float32(total) / float32(len(tokens)) / 10.0

	case 2: // Subword token ratio
		count := 0
		for _, token := range tokens {
			if strings.HasPrefix(token, "##") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 3: // Multi-byte (non-ASCII) token ratio
		count := 0
		for _, token := range tokens {
			if len(token) != len([]rune(token)) {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 4: // Vowel density
		vowels, chars := 0, 0
		for _, token := range tokens {
			for _, r := range token {
				chars++
				if isVowel(r) {
					vowels++
				}
			}
		}
		if chars > 0 {
			feature = float32(vowels) / float32(chars)
		}

	case 5: // Token diversity
		unique := make(map[string]bool, len(tokens))
		for _, token := range tokens {
			unique[token] = true
		}
		feature = float32(len(unique)) / float32(len(tokens))

	case 6: // Numeric content
		count := 0
		for _, token := range tokens {
			if _, err := strconv.ParseFloat(token, 32); err == nil {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 7: // Special token ratio
		count := 0
		for _, token := range tokens {
			if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	}

	return feature - 0.5
}

// l2Normalize scales the vector to unit length.
func l2Normalize(embedding []float32) []float32 {
	vec := make([]float64, len(embedding))
	for i, v := range embedding {
		vec[i] = float64(v)
	}

	n := floats.Norm(vec, 2)
	if n == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, v := range vec {
		normalized[i] = float32(v / n)
	}
	return normalized
}

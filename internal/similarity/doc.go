// Package similarity turns episode text into comparable vectors and answers
// nearest-neighbor queries over the episode corpus.
//
// The representation is a term-weighted (TF-IDF) bag of word tokens plus
// per-word character n-grams, so that morphological variants of the same
// term ("auth", "authentication") still attract each other. Vectors are
// L2-normalized and the index is rebuilt from the full corpus on every use:
// the vectorization depends on corpus-wide document frequencies, so it is
// deliberately not incremental.
//
// Nearest-neighbor search runs through an in-memory chromem-go collection
// loaded with the precomputed vectors.
package similarity

// Package engine owns trained NLU models in memory. It is structured by concern:
//
//   - runtime.go: process-wide Runtime (backend selection, languages, health).
//   - engine.go: per-bot Engine (train, cancel, load, predict, hash).
//   - net.go: the Net trainable unit contract.
//   - bow.go: bag-of-words perceptron backend.
//   - text.go: tokenization, list entity extraction, language detection.
//   - errors.go: error types and predicates.
//
// A Net polls its context once per batch of utterances, so cancellation of a
// training run is observed after at most one batch.
package engine

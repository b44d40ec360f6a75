// Package mocks provides test doubles for ports interfaces.
//
// These mocks are designed to be simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior that returns reasonable test values
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for inspecting recorded calls
//   - Reset methods for test isolation
//
// # Usage Example
//
//	func TestRun(t *testing.T) {
//		corpus := mocks.NewCorpus(docs...)
//		tracker := mocks.NewJobTracker()
//		sink := mocks.NewResultSink()
//
//		eng := evaluator.New(corpus, corpus, ...)
//		// ... assert on tracker.Statuses() and sink.Last()
//	}
//
// # Available Mocks
//
//   - Corpus: implements ports.CorpusReader and ports.FactCatalog
//   - JobTracker: implements ports.JobTracker
//   - CancelChecker: implements ports.CancelChecker
//   - ResultSink: implements ports.ResultSink
//   - RunRepository: implements ports.RunRepository
package mocks

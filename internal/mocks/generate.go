// Package mocks provides gomock implementations of the worker's capability
// interfaces.
//
// To regenerate after an interface change, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	a := mocks.NewMockAnalyzer(ctrl)
//	a.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(result, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=analyzer_mock.go github.com/itaysmouha/ScoutAI/internal/worker Analyzer

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=work_queue_mock.go github.com/itaysmouha/ScoutAI/internal/worker WorkQueue

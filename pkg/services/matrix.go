package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/matching"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
	"github.com/sheetline-inc/sheetline-engine/pkg/services/workqueue"
)

// DefaultMatrixChunkSize bounds how many source names a matrix task scores
// between cancellation checks and progress reports.
const DefaultMatrixChunkSize = 50

// SimilarityMatrix is the scored cross product of source names against
// target names. Rows follow Sources, columns follow Targets.
type SimilarityMatrix struct {
	Sources    []string             `json:"sources"`
	Targets    []string             `json:"targets"`
	Scores     [][]float64          `json:"scores"`
	MatchTypes [][]models.MatchType `json:"match_types"`

	// ExactOnly is set when the pre-pass found a strict-equal target for
	// every source and the full matrix was skipped.
	ExactOnly bool `json:"exact_only"`
}

// BestMatch is one source's winning target, if any cleared the floor.
type BestMatch struct {
	Source    string           `json:"source"`
	Target    string           `json:"target"`
	Score     float64          `json:"score"`
	MatchType models.MatchType `json:"match_type"`
}

// MatrixService runs the bulk name-matching operations on the work queue.
// Matrix tasks are the heavyweight kind: the queue serializes them while
// per-sheet analysis runs pooled.
type MatrixService struct {
	queue     *workqueue.Queue
	chunkSize int
	logger    *zap.Logger
}

// MatrixOption configures a MatrixService.
type MatrixOption func(*MatrixService)

// WithChunkSize overrides the per-chunk source count.
func WithChunkSize(n int) MatrixOption {
	return func(s *MatrixService) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// NewMatrixService creates a matrix service over the shared queue.
func NewMatrixService(queue *workqueue.Queue, logger *zap.Logger, opts ...MatrixOption) *MatrixService {
	s := &MatrixService{
		queue:     queue,
		chunkSize: DefaultMatrixChunkSize,
		logger:    logger.Named("matrix"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeMatrix enqueues a full similarity matrix computation. onDone runs
// on the worker goroutine with the finished matrix; onProgress (optional)
// is called with completed source counts between chunks.
func (s *MatrixService) ComputeMatrix(norm *matching.Normalizer, sources, targets []string, onProgress func(done, total int), onDone func(*SimilarityMatrix)) {
	task := &similarityMatrixTask{
		BaseTask:   workqueue.NewBaseTask("similarity matrix", workqueue.RequestComputeSimilarityMatrix, 0),
		norm:       norm,
		scorer:     matching.NewScorer(norm),
		sources:    sources,
		targets:    targets,
		chunkSize:  s.chunkSize,
		onProgress: onProgress,
		onDone:     onDone,
		logger:     s.logger,
	}
	s.queue.Enqueue(task)
}

// FindBestMatches enqueues a best-match pass: each source gets at most one
// winning target, chosen by score with the standard tie-break chain.
func (s *MatrixService) FindBestMatches(norm *matching.Normalizer, sources, targets []string, onDone func([]BestMatch)) {
	task := &bestMatchesTask{
		BaseTask: workqueue.NewBaseTask("find best matches", workqueue.RequestFindBestMatches, 0),
		scorer:   matching.NewScorer(norm),
		sources:  sources,
		targets:  targets,
		onDone:   onDone,
	}
	s.queue.Enqueue(task)
}

// ============================================================================
// Similarity Matrix Task
// ============================================================================

type similarityMatrixTask struct {
	workqueue.BaseTask

	norm       *matching.Normalizer
	scorer     *matching.Scorer
	sources    []string
	targets    []string
	chunkSize  int
	onProgress func(done, total int)
	onDone     func(*SimilarityMatrix)
	logger     *zap.Logger
}

func (t *similarityMatrixTask) Execute(ctx context.Context) error {
	matrix := &SimilarityMatrix{
		Sources:    t.sources,
		Targets:    t.targets,
		Scores:     make([][]float64, len(t.sources)),
		MatchTypes: make([][]models.MatchType, len(t.sources)),
	}

	// Pre-pass: if every source has an exact target the full cross product
	// adds nothing, so record only the exact hits and stop.
	if exact, ok := t.exactPrepass(); ok {
		for i := range t.sources {
			matrix.Scores[i] = exact[i].scores
			matrix.MatchTypes[i] = exact[i].types
		}
		matrix.ExactOnly = true
		t.logger.Debug("matrix short-circuited on exact pre-pass",
			zap.Int("sources", len(t.sources)))
		t.finish(matrix)
		return nil
	}

	for start := 0; start < len(t.sources); start += t.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+t.chunkSize, len(t.sources))
		for i := start; i < end; i++ {
			scores := make([]float64, len(t.targets))
			types := make([]models.MatchType, len(t.targets))
			for j, target := range t.targets {
				scores[j], types[j] = t.scorer.Match(t.sources[i], target)
			}
			matrix.Scores[i] = scores
			matrix.MatchTypes[i] = types
		}
		if t.onProgress != nil {
			t.onProgress(end, len(t.sources))
		}
	}

	t.finish(matrix)
	return nil
}

func (t *similarityMatrixTask) finish(matrix *SimilarityMatrix) {
	if t.onDone != nil {
		t.onDone(matrix)
	}
}

type exactRow struct {
	scores []float64
	types  []models.MatchType
}

// exactPrepass checks every source for a strict-equal target using key
// comparison only, skipping the scoring rules entirely. It succeeds only
// when all sources hit, returning rows populated at the exact positions and
// zero elsewhere.
func (t *similarityMatrixTask) exactPrepass() ([]exactRow, bool) {
	targetKeys := make([]string, len(t.targets))
	for j, target := range t.targets {
		targetKeys[j] = t.norm.StrictKey(target)
	}

	rows := make([]exactRow, len(t.sources))
	for i, source := range t.sources {
		row := exactRow{
			scores: make([]float64, len(t.targets)),
			types:  make([]models.MatchType, len(t.targets)),
		}
		for j := range row.types {
			row.types[j] = models.MatchTypeNone
		}

		sourceKey := t.norm.StrictKey(source)
		hit := false
		for j, key := range targetKeys {
			if sourceKey == key {
				row.scores[j] = 1.0
				row.types[j] = models.MatchTypeExact
				hit = true
			}
		}
		if !hit {
			return nil, false
		}
		rows[i] = row
	}
	return rows, true
}

// ============================================================================
// Best Matches Task
// ============================================================================

type bestMatchesTask struct {
	workqueue.BaseTask

	scorer  *matching.Scorer
	sources []string
	targets []string
	onDone  func([]BestMatch)
}

func (t *bestMatchesTask) Execute(ctx context.Context) error {
	matches := make([]BestMatch, 0, len(t.sources))
	for _, source := range t.sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates := make([]matching.Candidate, 0, len(t.targets))
		for _, target := range t.targets {
			score, mt := t.scorer.Match(source, target)
			if score <= models.MinSuggestionScore {
				continue
			}
			candidates = append(candidates, matching.Candidate{
				Name:      target,
				Score:     score,
				MatchType: mt,
			})
		}
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return matching.CompareCandidates(candidates[i], candidates[j]) < 0
		})

		best := candidates[0]
		matches = append(matches, BestMatch{
			Source:    source,
			Target:    best.Name,
			Score:     best.Score,
			MatchType: best.MatchType,
		})
	}

	if t.onDone != nil {
		t.onDone(matches)
	}
	return nil
}

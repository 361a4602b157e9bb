package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// Sheet analysis tasks fan out across a bounded pool; matrix tasks (full
// similarity grids) are heavy enough that strategies may serialize them
// independently of the analysis slots.
type ConcurrencyStrategy interface {
	// CanStartAnalysis returns true if a sheet analysis task can start.
	CanStartAnalysis() bool
	// CanStartMatrix returns true if a similarity matrix task can start.
	CanStartMatrix() bool
	// OnStartAnalysis is called when a sheet analysis task starts.
	OnStartAnalysis()
	// OnStartMatrix is called when a matrix task starts.
	OnStartMatrix()
	// OnCompleteAnalysis is called when a sheet analysis task completes.
	OnCompleteAnalysis()
	// OnCompleteMatrix is called when a matrix task completes.
	OnCompleteMatrix()
}

// ============================================================================
// PooledStrategy - up to N parallel analysis tasks, one matrix at a time
// ============================================================================

// PooledStrategy allows up to poolSize concurrent sheet analysis tasks while
// serializing matrix tasks. This is the default: one analysis slot per
// worker instance, never unbounded fan-out.
type PooledStrategy struct {
	mu              sync.Mutex
	poolSize        int
	analysisRunning int
	matrixRunning   bool
}

// NewPooledStrategy creates a strategy bounded by poolSize analysis workers.
func NewPooledStrategy(poolSize int) *PooledStrategy {
	if poolSize < 1 {
		poolSize = 1
	}
	return &PooledStrategy{poolSize: poolSize}
}

func (s *PooledStrategy) CanStartAnalysis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysisRunning < s.poolSize
}

func (s *PooledStrategy) CanStartMatrix() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.matrixRunning
}

func (s *PooledStrategy) OnStartAnalysis() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisRunning++
}

func (s *PooledStrategy) OnStartMatrix() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrixRunning = true
}

func (s *PooledStrategy) OnCompleteAnalysis() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysisRunning > 0 {
		s.analysisRunning--
	}
}

func (s *PooledStrategy) OnCompleteMatrix() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrixRunning = false
}

// ============================================================================
// SerializedStrategy - one task of each class at a time
// ============================================================================

// SerializedStrategy runs one analysis task and one matrix task at a time.
// Useful in tests and on constrained hosts.
type SerializedStrategy struct {
	pooled PooledStrategy
}

// NewSerializedStrategy creates a fully serialized strategy.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{pooled: PooledStrategy{poolSize: 1}}
}

func (s *SerializedStrategy) CanStartAnalysis() bool { return s.pooled.CanStartAnalysis() }
func (s *SerializedStrategy) CanStartMatrix() bool   { return s.pooled.CanStartMatrix() }
func (s *SerializedStrategy) OnStartAnalysis()       { s.pooled.OnStartAnalysis() }
func (s *SerializedStrategy) OnStartMatrix()         { s.pooled.OnStartMatrix() }
func (s *SerializedStrategy) OnCompleteAnalysis()    { s.pooled.OnCompleteAnalysis() }
func (s *SerializedStrategy) OnCompleteMatrix()      { s.pooled.OnCompleteMatrix() }

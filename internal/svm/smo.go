package svm

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultEps is the stopping tolerance on the maximal KKT violation.
	DefaultEps = 1e-3
	// Tau replaces non-positive curvature in the update denominators.
	Tau = 1e-12

	defaultLogEvery = 100
	minMaxIter      = 10_000_000
)

type AlphaStatus int8

const (
	LowerBound AlphaStatus = -1
	Free       AlphaStatus = 0
	UpperBound AlphaStatus = 1
)

func (s AlphaStatus) String() string {
	switch s {
	case LowerBound:
		return "lower"
	case Free:
		return "free"
	case UpperBound:
		return "upper"
	default:
		return fmt.Sprintf("AlphaStatus(%d)", int(s))
	}
}

type TrainerState int

const (
	Uninitialized TrainerState = iota
	Initialized
	Iterating
	Converged
)

func (s TrainerState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	default:
		return fmt.Sprintf("TrainerState(%d)", int(s))
	}
}

type TrainerConfig struct {
	// Cost is the upper bound for every multiplier. It is ignored when
	// ClassCost is set.
	Cost float64
	// ClassCost assigns a cost per original class label.
	ClassCost map[int]float64
	Eps       float64
	// MaxIter caps the number of pairwise updates of Train. Zero selects
	// max(10^7, 100*l).
	MaxIter int
	// Logger receives progress lines every LogEvery updates; nil is silent.
	Logger   *log.Logger
	LogEvery int
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Cost:     1,
		Eps:      DefaultEps,
		LogEvery: defaultLogEvery,
	}
}

// Trainer runs sequential minimal optimization on the multipliers of a
// BinarySVM. Each step picks the maximal violating pair with a second order
// choice for the partner, and solves the two-variable sub-problem
// analytically.
type Trainer struct {
	module *BinarySVM
	cfg    TrainerConfig

	C      []float64
	G      []float64
	status []AlphaStatus

	lbNum, freeNum, ubNum int

	state   TrainerState
	steps   int
	maxIter int
	lastI   int
	lastJ   int
}

// NewTrainer attaches a trainer to a BinarySVM whose data has been set.
// The trainer borrows the module; alpha is reset on the first step.
func NewTrainer(m *BinarySVM, cfg TrainerConfig) (*Trainer, error) {
	if m == nil || m.Kernel == nil || m.Kernel.L() == 0 {
		return nil, ErrNoData
	}
	if cfg.Eps <= 0 {
		cfg.Eps = DefaultEps
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = defaultLogEvery
	}

	C, err := costVector(m, cfg)
	if err != nil {
		return nil, err
	}

	l := m.Kernel.L()
	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = max(minMaxIter, 100*l)
	}

	return &Trainer{
		module:  m,
		cfg:     cfg,
		C:       C,
		maxIter: maxIter,
		lastI:   -1,
		lastJ:   -1,
	}, nil
}

func costVector(m *BinarySVM, cfg TrainerConfig) ([]float64, error) {
	l := m.Kernel.L()
	C := make([]float64, l)

	if len(cfg.ClassCost) == 0 {
		if !(cfg.Cost > 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCost, cfg.Cost)
		}
		for i := range C {
			C[i] = cfg.Cost
		}
		return C, nil
	}

	for class, cost := range cfg.ClassCost {
		if _, ok := m.ClassToRawOutput(class); !ok {
			return nil, fmt.Errorf("%w: class %d", ErrUnknownClassCost, class)
		}
		if !(cost > 0) {
			return nil, fmt.Errorf("%w: class %d has cost %v", ErrInvalidCost, class, cost)
		}
	}
	perSide := [2]float64{}
	for idx, class := range m.Classes {
		cost, ok := cfg.ClassCost[class]
		if !ok {
			return nil, fmt.Errorf("%w: no cost for class %d", ErrInvalidCostConfiguration, class)
		}
		perSide[idx] = cost
	}
	for i, y := range m.Kernel.Y {
		if y < 0 {
			C[i] = perSide[0]
		} else {
			C[i] = perSide[1]
		}
	}
	return C, nil
}

func (t *Trainer) initialize() {
	l := t.module.Kernel.L()

	t.module.Alpha = make([]float64, l)
	t.G = make([]float64, l)
	t.status = make([]AlphaStatus, l)
	for i := range t.G {
		// Q*0 - 1
		t.G[i] = -1
		t.status[i] = LowerBound
	}
	t.lbNum, t.freeNum, t.ubNum = l, 0, 0
	t.steps = 0
	t.state = Initialized
}

// Step performs one pairwise update. It returns false once no violating
// pair is left, i.e. the multipliers have converged.
func (t *Trainer) Step() bool {
	if t.state == Uninitialized {
		t.initialize()
	}
	if t.state == Converged {
		return false
	}

	i, j := t.SelectWorkingSet()
	if i < 0 {
		t.state = Converged
		return false
	}

	t.state = Iterating
	t.steps++
	t.lastI, t.lastJ = i, j
	t.update(i, j)

	if t.cfg.Logger != nil && t.steps%t.cfg.LogEvery == 0 {
		t.logProgress()
	}
	return true
}

// SelectWorkingSet returns the pair of indices to optimize next, or -1, -1
// when the maximal violation drops below the tolerance.
func (t *Trainer) SelectWorkingSet() (int, int) {
	if t.state == Uninitialized {
		t.initialize()
	}

	k := t.module.Kernel
	Y, QD, G := k.Y, k.QD, t.G
	negInf, posInf := math.Inf(-1), math.Inf(1)

	gmaxPos, iPos := negInf, -1
	gmaxNeg, iNeg := negInf, -1
	for s, y := range Y {
		if y > 0 {
			if t.status[s] != UpperBound && -G[s] > gmaxPos {
				gmaxPos, iPos = -G[s], s
			}
		} else {
			if t.status[s] != LowerBound && G[s] > gmaxNeg {
				gmaxNeg, iNeg = G[s], s
			}
		}
	}

	gmax1, i := gmaxPos, iPos
	if gmaxNeg > gmaxPos {
		gmax1, i = gmaxNeg, iNeg
	}
	if i < 0 {
		return -1, -1
	}

	Qi := k.QRow(i)

	gmax21, objMin1, j1 := negInf, posInf, -1
	gmax22, objMin2, j2 := negInf, posInf, -1
	for s, y := range Y {
		if y > 0 {
			if t.status[s] == LowerBound {
				continue
			}
			if G[s] > gmax21 {
				gmax21 = G[s]
			}
			gradDiff := gmax1 + G[s]
			if gradDiff > 0 {
				a := QD[i] + QD[s] - 2*Y[i]*Qi[s]
				if obj := objDiff(gradDiff, a); obj < objMin1 {
					objMin1, j1 = obj, s
				}
			}
		} else {
			if t.status[s] == UpperBound {
				continue
			}
			if -G[s] > gmax22 {
				gmax22 = -G[s]
			}
			gradDiff := gmax1 - G[s]
			if gradDiff > 0 {
				a := QD[i] + QD[s] + 2*Y[i]*Qi[s]
				if obj := objDiff(gradDiff, a); obj < objMin2 {
					objMin2, j2 = obj, s
				}
			}
		}
	}

	j := j1
	if objMin2 < objMin1 {
		j = j2
	}
	gmax2 := math.Max(gmax21, gmax22)

	if gmax1+gmax2 < t.cfg.Eps || j < 0 {
		return -1, -1
	}
	return i, j
}

func objDiff(gradDiff, a float64) float64 {
	if a <= 0 {
		a = Tau
	}
	return -(gradDiff * gradDiff) / a
}

func (t *Trainer) update(i, j int) {
	k := t.module.Kernel
	alpha := t.module.Alpha
	Y, QD, G := k.Y, k.QD, t.G

	Qi := k.QRow(i)
	Qj := k.QRow(j)
	Ci, Cj := t.C[i], t.C[j]
	oldAi, oldAj := alpha[i], alpha[j]

	if Y[i] != Y[j] {
		a := QD[i] + QD[j] + 2*Qi[j]
		if a <= 0 {
			a = Tau
		}
		delta := (-G[i] - G[j]) / a
		diff := alpha[i] - alpha[j]
		alpha[i] += delta
		alpha[j] += delta

		if diff > 0 {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = diff
			}
		} else {
			if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
		}
		if diff > Ci-Cj {
			if alpha[i] > Ci {
				alpha[i] = Ci
				alpha[j] = Ci - diff
			}
		} else {
			if alpha[j] > Cj {
				alpha[j] = Cj
				alpha[i] = Cj + diff
			}
		}
	} else {
		a := QD[i] + QD[j] - 2*Qi[j]
		if a <= 0 {
			a = Tau
		}
		delta := (G[i] - G[j]) / a
		sum := alpha[i] + alpha[j]
		alpha[i] -= delta
		alpha[j] += delta

		if sum > Ci {
			if alpha[i] > Ci {
				alpha[i] = Ci
				alpha[j] = sum - Ci
			}
		} else {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
		}
		if sum > Cj {
			if alpha[j] > Cj {
				alpha[j] = Cj
				alpha[i] = sum - Cj
			}
		} else {
			if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}
	}

	floats.AddScaled(G, alpha[i]-oldAi, Qi)
	floats.AddScaled(G, alpha[j]-oldAj, Qj)

	t.updateAlphaStatus(i)
	t.updateAlphaStatus(j)
}

func (t *Trainer) updateAlphaStatus(i int) {
	a := t.module.Alpha[i]
	old := t.status[i]

	next := Free
	switch {
	case a >= t.C[i]:
		next = UpperBound
	case a <= 0:
		next = LowerBound
	}
	if next == old {
		return
	}
	t.status[i] = next
	t.adjustCount(old, -1)
	t.adjustCount(next, +1)
}

func (t *Trainer) adjustCount(s AlphaStatus, d int) {
	switch s {
	case LowerBound:
		t.lbNum += d
	case Free:
		t.freeNum += d
	case UpperBound:
		t.ubNum += d
	}
}

// Train steps until convergence and then computes beta. It returns an
// error only if ctx is cancelled; beta is still updated in that case.
func (t *Trainer) Train(ctx context.Context) error {
	return t.run(ctx, 0)
}

// TrainEpochs performs at most epochs pairwise updates, or trains to
// convergence if epochs <= 0, and then computes beta.
func (t *Trainer) TrainEpochs(ctx context.Context, epochs int) error {
	return t.run(ctx, epochs)
}

func (t *Trainer) run(ctx context.Context, limit int) error {
	if t.state == Uninitialized {
		t.initialize()
	}

	var err error
	for n := 0; limit <= 0 || n < limit; n++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if t.steps >= t.maxIter {
			if t.cfg.Logger != nil {
				t.cfg.Logger.Printf("reached max number of iterations (%d)", t.maxIter)
			}
			break
		}
		if !t.Step() {
			break
		}
	}

	t.UpdateBeta()
	if t.cfg.Logger != nil {
		t.logProgress()
		t.cfg.Logger.Printf("training finished in state %s", t.state)
	}
	return err
}

func (t *Trainer) logProgress() {
	t.cfg.Logger.Printf("iteration: %d free=%d lb=%d ub=%d objective=%.6f",
		t.steps, t.freeNum, t.lbNum, t.ubNum, t.Objective())
}

// UpdateBeta writes the current threshold to the module.
func (t *Trainer) UpdateBeta() {
	t.module.Beta = t.CalculateBeta()
}

// CalculateBeta derives the threshold from the current multipliers: the
// mean of Y*G over free multipliers, or the midpoint of the bounds implied
// by the bound ones when none is free.
func (t *Trainer) CalculateBeta() float64 {
	if t.state == Uninitialized {
		t.initialize()
	}

	Y := t.module.Kernel.Y
	ub, lb := math.Inf(1), math.Inf(-1)
	nrFree := 0
	sumFree := 0.0

	for s, y := range Y {
		yG := y * t.G[s]
		switch t.status[s] {
		case Free:
			nrFree++
			sumFree += yG
		case UpperBound:
			if y < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case LowerBound:
			if y > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		}
	}

	if nrFree > 0 {
		return sumFree / float64(nrFree)
	}
	return (ub + lb) / 2
}

// Objective returns 0.5*alpha'*Q*alpha - sum(alpha) at the current alpha.
func (t *Trainer) Objective() float64 {
	if t.G == nil {
		return 0
	}
	v := 0.0
	for i, a := range t.module.Alpha {
		v += a * (t.G[i] - 1)
	}
	return v / 2
}

func (t *Trainer) Module() *BinarySVM {
	return t.module
}

func (t *Trainer) State() TrainerState {
	return t.state
}

// Steps returns the number of pairwise updates performed so far.
func (t *Trainer) Steps() int {
	return t.steps
}

// Counts returns the number of multipliers at the lower bound, free and at
// the upper bound.
func (t *Trainer) Counts() (lb, free, ub int) {
	return t.lbNum, t.freeNum, t.ubNum
}

func (t *Trainer) Status(i int) AlphaStatus {
	if t.status == nil {
		return LowerBound
	}
	return t.status[i]
}

func (t *Trainer) Gradient() []float64 {
	g := make([]float64, len(t.G))
	copy(g, t.G)
	return g
}

// Cost returns the upper bound of multiplier i.
func (t *Trainer) Cost(i int) float64 {
	return t.C[i]
}

func (t *Trainer) LastWorkingSet() (int, int) {
	return t.lastI, t.lastJ
}

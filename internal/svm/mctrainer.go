package svm

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// MulticlassTrainer drives one SMO Trainer per sub-model of a
// MulticlassSVM. Sub-problems share no state, so with workers > 1 they are
// trained concurrently.
type MulticlassTrainer struct {
	module   *MulticlassSVM
	cfg      TrainerConfig
	workers  int
	trainers []*Trainer
}

func NewMulticlassTrainer(m *MulticlassSVM, cfg TrainerConfig, workers int) (*MulticlassTrainer, error) {
	if m == nil || len(m.Subs) == 0 {
		return nil, ErrNoData
	}
	if len(cfg.ClassCost) > 0 {
		if m.Strategy == OneVsAll {
			return nil, fmt.Errorf("%w: per-class cost cannot be used with %s", ErrInvalidCostConfiguration, m.Strategy)
		}
		for class := range cfg.ClassCost {
			if !m.hasClass(class) {
				return nil, fmt.Errorf("%w: class %d", ErrUnknownClassCost, class)
			}
		}
	}

	trainers := make([]*Trainer, len(m.Subs))
	for idx, sub := range m.Subs {
		subCfg := cfg
		if len(cfg.ClassCost) > 0 {
			subCfg.ClassCost = make(map[int]float64, 2)
			for _, c := range sub.Classes {
				if cost, ok := cfg.ClassCost[c]; ok {
					subCfg.ClassCost[c] = cost
				}
			}
		}
		tr, err := NewTrainer(sub.SVM, subCfg)
		if err != nil {
			return nil, fmt.Errorf("sub-model %s: %w", sub, err)
		}
		trainers[idx] = tr
	}

	return &MulticlassTrainer{
		module:   m,
		cfg:      cfg,
		workers:  workers,
		trainers: trainers,
	}, nil
}

func (t *MulticlassTrainer) Train(ctx context.Context) error {
	return t.run(ctx, 0)
}

// TrainEpochs gives every sub-trainer a budget of at most epochs updates.
func (t *MulticlassTrainer) TrainEpochs(ctx context.Context, epochs int) error {
	return t.run(ctx, epochs)
}

func (t *MulticlassTrainer) run(ctx context.Context, epochs int) error {
	if t.workers <= 1 {
		for idx, tr := range t.trainers {
			if err := t.trainOne(ctx, idx, tr, epochs); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().WithMaxGoroutines(t.workers).WithErrors()
	for idx, tr := range t.trainers {
		idx, tr := idx, tr
		p.Go(func() error {
			return t.trainOne(ctx, idx, tr, epochs)
		})
	}
	return p.Wait()
}

func (t *MulticlassTrainer) trainOne(ctx context.Context, idx int, tr *Trainer, epochs int) error {
	sub := t.module.Subs[idx]
	if t.cfg.Logger != nil {
		t.cfg.Logger.Printf("=== training sub-model %s", sub)
	}
	if err := tr.TrainEpochs(ctx, epochs); err != nil {
		return fmt.Errorf("sub-model %s: %w", sub, err)
	}
	if t.cfg.Logger != nil {
		t.cfg.Logger.Printf("sub-model %s finished after %d steps", sub, tr.Steps())
	}
	return nil
}

func (t *MulticlassTrainer) Trainers() []*Trainer {
	return t.trainers
}

// Steps returns the total number of pairwise updates over all sub-trainers.
func (t *MulticlassTrainer) Steps() int {
	total := 0
	for _, tr := range t.trainers {
		total += tr.Steps()
	}
	return total
}

func (t *MulticlassTrainer) Converged() bool {
	for _, tr := range t.trainers {
		if tr.State() != Converged {
			return false
		}
	}
	return true
}

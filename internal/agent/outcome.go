package agent

import (
	"errors"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/catalog"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/repository"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/results"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// FailureKind decides whether a failed delivery is requeued.
type FailureKind int

const (
	// FailureTransient may succeed on redelivery.
	FailureTransient FailureKind = iota
	// FailureInput means the job's input is unworkable.
	FailureInput
)

func (k FailureKind) String() string {
	if k == FailureInput {
		return "input"
	}
	return "transient"
}

// Requeue reports whether the broker should redeliver.
func (k FailureKind) Requeue() bool { return k == FailureTransient }

// Outcome is the result of running one job's pipeline: Success, Failure or
// Superseded.
type Outcome interface {
	outcome()
}

// Success carries what was committed.
type Success struct {
	Metrics models.ScanMetrics
	Summary *results.Summary
}

// Failure carries the classified error and the stage it came from.
type Failure struct {
	Kind  FailureKind
	Stage string
	Err   error
}

// Superseded means another actor finalised the job while it ran.
type Superseded struct {
	Reason string
}

func (Success) outcome()    {}
func (Failure) outcome()    {}
func (Superseded) outcome() {}

// Classify maps a stage error to its FailureKind. Fetch failures and empty
// catalogs are input failures; everything else is transient.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, repository.ErrCloneFailed),
		errors.Is(err, repository.ErrCloneTimeout),
		errors.Is(err, catalog.ErrNoFiles):
		return FailureInput
	default:
		return FailureTransient
	}
}

func fail(stage string, err error) Failure {
	return Failure{Kind: Classify(err), Stage: stage, Err: err}
}

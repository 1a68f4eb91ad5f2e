package svm

import "errors"

var (
	ErrEmptyData         = errors.New("svm: empty training data")
	ErrDimensionMismatch = errors.New("svm: dimension mismatch")
	ErrTooManyClasses    = errors.New("svm: too many classes for a binary svm, use MulticlassSVM")
	ErrTooFewClasses     = errors.New("svm: training data must contain two classes")
	ErrDataAlreadySet    = errors.New("svm: training data already set")
	ErrNoData            = errors.New("svm: no training data set")
	ErrNotTrained        = errors.New("svm: model is not trained")
	ErrNotExplicit       = errors.New("svm: kernel has no explicit feature function")

	ErrInvalidCost              = errors.New("svm: cost must be positive")
	ErrUnknownClassCost         = errors.New("svm: cost given for a class absent from the training data")
	ErrInvalidCostConfiguration = errors.New("svm: invalid cost configuration")

	ErrClassificationFailed = errors.New("svm: classification failed")
	ErrDeserialization      = errors.New("svm: cannot deserialize model")
)

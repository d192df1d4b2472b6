// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset provides the datasets used by the bigactor
// examples: synthetic regression data and CSV files read through
// base/file, so that local paths and s3:// URLs work alike.
package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

func init() {
	gob.Register(&Set{})
}

// A Set is a regression dataset: one feature row and one target per
// observation. All fields are exported so that sets can be shipped
// to remote tasks.
type Set struct {
	Features [][]float64
	Targets  []float64
}

// Len returns the number of observations in the set.
func (s *Set) Len() int { return len(s.Targets) }

// Dim returns the feature dimension, or 0 for an empty set.
func (s *Set) Dim() int {
	if len(s.Features) == 0 {
		return 0
	}
	return len(s.Features[0])
}

// Synthetic produces a seeded dataset drawn from the provided linear
// model with Gaussian noise. Identical arguments always produce the
// identical dataset, which keeps the examples reproducible.
func Synthetic(seed int64, n int, intercept float64, weights []float64, noise float64) *Set {
	r := rand.New(rand.NewSource(seed))
	s := &Set{
		Features: make([][]float64, n),
		Targets:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		x := make([]float64, len(weights))
		y := intercept
		for j := range x {
			x[j] = r.NormFloat64()
			y += weights[j] * x[j]
		}
		s.Features[i] = x
		s.Targets[i] = y + noise*r.NormFloat64()
	}
	return s
}

// Split partitions the set into a training set holding frac of the
// observations and a test set holding the rest. Observations are
// shuffled with the provided seed first.
func (s *Set) Split(frac float64, seed int64) (train, test *Set) {
	if frac < 0 || frac > 1 {
		panic(fmt.Sprintf("dataset.Split: frac %v out of range", frac))
	}
	perm := rand.New(rand.NewSource(seed)).Perm(s.Len())
	cut := int(frac * float64(s.Len()))
	train, test = new(Set), new(Set)
	for i, j := range perm {
		dst := train
		if i >= cut {
			dst = test
		}
		dst.Features = append(dst.Features, s.Features[j])
		dst.Targets = append(dst.Targets, s.Targets[j])
	}
	return train, test
}

// ReadCSV reads a dataset from the provided path, which may name any
// scheme registered with base/file (e.g. s3://). Each record holds
// the feature values followed by the target in the last column.
func ReadCSV(ctx context.Context, path string) (*Set, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx)
	var (
		r = csv.NewReader(f.Reader(ctx))
		s = new(Set)
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(fmt.Sprintf("read %s", path), err)
		}
		if len(record) < 2 {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("read %s: record has %d columns, need at least 2", path, len(record)))
		}
		row := make([]float64, len(record)-1)
		for i, field := range record[:len(record)-1] {
			if row[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("read %s: bad feature %q", path, field))
			}
		}
		target, err := strconv.ParseFloat(record[len(record)-1], 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("read %s: bad target %q", path, record[len(record)-1]))
		}
		s.Features = append(s.Features, row)
		s.Targets = append(s.Targets, target)
	}
	if s.Len() == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("read %s: empty dataset", path))
	}
	return s, nil
}

// WriteCSV writes the dataset to the provided path in the format
// read by ReadCSV.
func (s *Set) WriteCSV(ctx context.Context, path string) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	var (
		bw = bufio.NewWriter(f.Writer(ctx))
		w  = csv.NewWriter(bw)
	)
	record := make([]string, s.Dim()+1)
	for i, row := range s.Features {
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = strconv.FormatFloat(s.Targets[i], 'g', -1, 64)
		if err := w.Write(record); err != nil {
			f.Close(ctx)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close(ctx)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

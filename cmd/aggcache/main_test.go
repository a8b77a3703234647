package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/blobstore"
	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

func seed(t *testing.T, tier cache.Tier, schema string, states ...string) *segment.Header {
	t.Helper()
	s := star.New(schema, "v1", "sales_fact")
	state := s.AddColumn("state", "state", "sales_fact", star.String, 3)
	vals := make([]any, len(states))
	doubles := make([]float64, len(states))
	for i, st := range states {
		vals[i] = st
		doubles[i] = float64(i + 1)
	}
	h := segment.NewHeader(segment.Header{
		SchemaName:     schema,
		SchemaChecksum: "v1",
		CubeName:       "Sales",
		MeasureName:    "Unit Sales",
		FactTable:      "sales_fact",
		Width:          uint(s.ColumnCount()),
		Columns:        []segment.ColumnConstraint{segment.Constraint(state, vals...)},
	})
	b := &segment.Body{
		Kind:       segment.DenseDoubleBody,
		Type:       segment.DoubleType,
		AxisValues: []star.Values{star.Values(star.SortedSet(vals))},
		NullAxis:   []bool{false},
		Doubles:    doubles,
	}
	require.NoError(t, tier.Put(context.Background(), h, b))
	return h
}

func diskDir(t *testing.T) (string, *segment.Header, *segment.Header) {
	t.Helper()
	dir := t.TempDir()
	tier, err := cache.NewDiskTier(cache.DiskConfig{Dir: dir})
	require.NoError(t, err)
	a := seed(t, tier, "FoodMart", "CA", "OR")
	b := seed(t, tier, "Steelwheels", "WA")
	require.NoError(t, tier.Close())
	return dir, a, b
}

func exec(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(context.Background(), &out, &errb, args)
	return code, out.String(), errb.String()
}

func TestUsage(t *testing.T) {
	code, out, _ := exec(t)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "purge")

	code, _, errOut := exec(t, "--disk", t.TempDir(), "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown command")

	code, _, errOut = exec(t, "ls")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--disk or --blob")
}

func TestList(t *testing.T) {
	dir, a, b := diskDir(t)

	code, out, _ := exec(t, "--disk", dir, "ls")
	require.Equal(t, 0, code)
	assert.Contains(t, out, shortID(a.ID))
	assert.Contains(t, out, shortID(b.ID))

	code, out, _ = exec(t, "--disk", dir, "ls", "--schema", "Steelwheels", "--json")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, a.ID)
	assert.Contains(t, out, b.ID)
}

func TestShow(t *testing.T) {
	dir, a, _ := diskDir(t)

	code, out, _ := exec(t, "--disk", dir, "show", "--body", a.ID[:10])
	require.Equal(t, 0, code)
	assert.Contains(t, out, a.ID)
	assert.Contains(t, out, `"valid": true`)
	assert.Contains(t, out, `"cells": 2`)

	code, _, errOut := exec(t, "--disk", dir, "show", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no segment")
}

func TestPurge(t *testing.T) {
	dir, a, b := diskDir(t)

	code, _, errOut := exec(t, "--disk", dir, "purge")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--all")

	code, out, _ := exec(t, "--disk", dir, "purge", "--schema", "FoodMart", "-n")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "would remove "+shortID(a.ID))

	code, out, _ = exec(t, "--disk", dir, "purge", "--schema", "FoodMart")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "removed 1 segments")

	code, out, _ = exec(t, "--disk", dir, "ls")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, shortID(a.ID))
	assert.Contains(t, out, shortID(b.ID))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	tier := cache.NewBlobTier(blobstore.NewLocalStore(dir))
	h := seed(t, tier, "FoodMart", "CA", "OR", "WA")
	path := filepath.Join(t.TempDir(), "segment.agcf")

	code, out, _ := exec(t, "--blob", dir, "--io-limit", "1048576", "export", h.ID, path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "wrote")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var b segment.Body
	require.NoError(t, cache.DecodeFrame(data, &b))
	assert.Equal(t, []float64{1, 2, 3}, b.Doubles)
}

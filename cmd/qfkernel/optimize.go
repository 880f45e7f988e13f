package main

import (
	"fmt"
	"math/rand"

	"github.com/notargets/QFKernel/meshopt"
	"github.com/spf13/cobra"
)

type optimizeOptions struct {
	*rootOptions
	MeshFile    string
	OptionsFile string
	N           int
	Perturb     float64
	Seed        int64
}

func newOptimizeCommand(root *rootOptions) *cobra.Command {
	opts := &optimizeOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Relocate interior nodes to improve simplex mesh quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.MeshFile, "mesh", "", "tetrahedral mesh file (default: perturbed triangle grid)")
	f.StringVar(&opts.OptionsFile, "options", "", "YAML optimizer options")
	f.IntVarP(&opts.N, "cells", "n", 6, "grid cells per side when no mesh file is given")
	f.Float64Var(&opts.Perturb, "perturb", 0.3, "interior node jitter as a fraction of the spacing")
	f.Int64Var(&opts.Seed, "seed", 1, "random seed")
	return cmd
}

// perturbedGrid triangulates the unit square and jitters its interior nodes.
func perturbedGrid(n int, perturb float64, rng *rand.Rand) *meshopt.Mesh {
	h := 1 / float64(n)
	m := &meshopt.Mesh{Dim: 2}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x := []float64{float64(i) * h, float64(j) * h}
			if i > 0 && i < n && j > 0 && j < n {
				x[0] += perturb * h * (rng.Float64() - 0.5)
				x[1] += perturb * h * (rng.Float64() - 0.5)
			}
			m.Nodes = append(m.Nodes, x)
		}
	}
	id := func(i, j int) int { return i + (n+1)*j }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			m.Elements = append(m.Elements,
				[]int{id(i, j), id(i+1, j), id(i+1, j+1)},
				[]int{id(i, j), id(i+1, j+1), id(i, j+1)},
			)
		}
	}
	return m
}

func runOptimize(cmd *cobra.Command, opts *optimizeOptions) error {
	options := meshopt.DefaultOptions()
	if opts.OptionsFile != "" {
		var err error
		if options, err = meshopt.LoadOptions(opts.OptionsFile); err != nil {
			return err
		}
	}
	if opts.Verbose && options.Verbosity == 0 {
		options.Verbosity = 1
	}

	var m *meshopt.Mesh
	if opts.MeshFile != "" {
		var err error
		if m, err = meshopt.ReadMeshFile(opts.MeshFile); err != nil {
			return err
		}
	} else {
		if opts.N < 2 {
			return fmt.Errorf("need at least two cells per side, got %d", opts.N)
		}
		if opts.Perturb < 0 || opts.Perturb >= 1 {
			return fmt.Errorf("perturbation %g must lie in [0, 1)", opts.Perturb)
		}
		m = perturbedGrid(opts.N, opts.Perturb, rand.New(rand.NewSource(opts.Seed)))
	}

	before, err := meshopt.Quality(m, m, options)
	if err != nil {
		return err
	}
	var opt meshopt.Optimizer = meshopt.TMOP{}
	refined, err := opt.Optimize(cmd.Context(), m, options)
	if err != nil {
		return err
	}
	after, err := meshopt.Quality(refined, m, options)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%dD mesh: %d nodes, %d elements\n", m.Dim, len(m.Nodes), len(m.Elements))
	fmt.Fprintf(cmd.OutOrStdout(), "quality %.6e -> %.6e\n", before, after)
	return nil
}

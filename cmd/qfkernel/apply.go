package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/notargets/QFKernel/element"
	"github.com/notargets/QFKernel/operator"
	"github.com/notargets/QFKernel/partitions"
	"github.com/notargets/QFKernel/qfunc"
	"github.com/notargets/QFKernel/runner"
	"github.com/notargets/QFKernel/runner/builder"
	"github.com/notargets/QFKernel/utils"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type applyOptions struct {
	*rootOptions
	N             int
	Order         int
	Workers       int
	PartitionSize int
	Strategy      string
	Perturb       float64
	Seed          int64
	Device        bool
	Float32       bool
}

func newApplyCommand(root *rootOptions) *cobra.Command {
	opts := &applyOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the mass plus diffusion kernel on a perturbed hex mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.N, "elements", "n", 4, "hexahedra per side of the unit cube")
	f.IntVar(&opts.Order, "points", 3, "Gauss points per direction")
	f.IntVar(&opts.Workers, "workers", 0, "concurrent partitions (0 = GOMAXPROCS)")
	f.IntVar(&opts.PartitionSize, "partition-size", 0, "elements per partition (0 = balanced)")
	f.StringVar(&opts.Strategy, "strategy", "block", "partition strategy (block|round-robin)")
	f.Float64Var(&opts.Perturb, "perturb", 0.2, "interior vertex jitter as a fraction of the spacing")
	f.Int64Var(&opts.Seed, "seed", 1, "random seed")
	f.BoolVar(&opts.Device, "device", false, "also run the generated OCCA kernel")
	f.BoolVar(&opts.Float32, "float32", false, "single precision on the device")
	return cmd
}

// diffusion is the material tensor of the tensor block.
var diffusion = mat.NewDense(3, 3, []float64{
	2.0, 0.5, 0.0,
	0.5, 1.0, 0.1,
	0.0, 0.1, 1.5,
})

// hexMesh splits the unit cube into n³ trilinear hexahedra, moving interior
// vertices by up to perturb times the spacing.
func hexMesh(n int, perturb float64, rng *rand.Rand) []element.Hex8 {
	h := 1 / float64(n)
	verts := make([][3]float64, (n+1)*(n+1)*(n+1))
	id := func(i, j, k int) int { return i + (n+1)*(j+(n+1)*k) }
	for k := 0; k <= n; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				x := [3]float64{float64(i) * h, float64(j) * h, float64(k) * h}
				if i > 0 && i < n && j > 0 && j < n && k > 0 && k < n {
					for d := range x {
						x[d] += perturb * h * (rng.Float64() - 0.5)
					}
				}
				verts[id(i, j, k)] = x
			}
		}
	}
	hexes := make([]element.Hex8, 0, n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				corners := [8]int{
					id(i, j, k), id(i+1, j, k), id(i+1, j+1, k), id(i, j+1, k),
					id(i, j, k+1), id(i+1, j, k+1), id(i+1, j+1, k+1), id(i, j+1, k+1),
				}
				var hex element.Hex8
				for a, c := range corners {
					hex.Vertices[a] = verts[c]
				}
				hexes = append(hexes, hex)
			}
		}
	}
	return hexes
}

func randomField(rng *rand.Rand, n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 2*rng.Float64() - 1
	}
	return f
}

func runApply(cmd *cobra.Command, opts *applyOptions) error {
	if opts.N < 1 {
		return fmt.Errorf("need at least one element per side, got %d", opts.N)
	}
	strategy, err := partitions.ParseStrategy(opts.Strategy)
	if err != nil {
		return err
	}
	rule, err := element.TensorRule(element.D3, opts.Order)
	if err != nil {
		return err
	}
	Q := rule.NumPoints()
	rng := rand.New(rand.NewSource(opts.Seed))
	hexes := hexMesh(opts.N, opts.Perturb, rng)
	K := len(hexes)

	qf, err := qfunc.Global.Lookup(qfunc.Apply13.Name())
	if err != nil {
		return err
	}
	weights := make([]float64, 0, K*qf.InputLen(Q, 0))
	volume := 0.0
	for e := range hexes {
		gf, err := hexes[e].Factors(rule)
		if err != nil {
			return fmt.Errorf("element %d: %w", e, err)
		}
		volume += gf.Volume()
		w, err := gf.Apply13Weights(diffusion)
		if err != nil {
			return fmt.Errorf("element %d: %w", e, err)
		}
		weights = append(weights, w...)
	}
	in := [][]float64{weights, randomField(rng, K*Q), randomField(rng, K*3*Q)}
	out := [][]float64{make([]float64, K*Q), make([]float64, K*3*Q)}

	engine := operator.NewEngine(qf, operator.Config{
		Workers:       opts.Workers,
		PartitionSize: opts.PartitionSize,
		Strategy:      strategy,
		Verbose:       opts.Verbose,
	})
	if err := engine.Apply(cmd.Context(), Q, in, out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d hexahedra, %d points each (chunk %d, %s)\n",
		qf.Name(), K, Q, qfunc.ChunkSize(), qfunc.SIMDLevel())
	fmt.Fprintf(w, "mesh volume %.12f\n", volume)
	fmt.Fprintf(w, "energy mass %.12e diffusion %.12e\n", floats.Dot(in[1], out[0]), floats.Dot(in[2], out[1]))

	if !opts.Device {
		return nil
	}
	return runDevice(cmd, opts, qf, Q, in, out)
}

// runDevice repeats the application with the generated OCCA kernel and
// reports the largest deviation from the host result.
func runDevice(cmd *cobra.Command, opts *applyOptions, qf *qfunc.QFunction, Q int, in, host [][]float64) error {
	device, err := utils.TryCreateDevice()
	if err != nil {
		return err
	}
	defer device.Free()

	K := len(in[1]) / Q
	size := opts.PartitionSize
	if size <= 0 {
		size = max(1, K/8)
	}
	layout, err := (&partitions.PartitionBuilder{NumElements: K, TargetPartitionSize: size}).BuildPartitions()
	if err != nil {
		return err
	}
	floatType := builder.Float64
	if opts.Float32 {
		floatType = builder.Float32
	}
	cfg, err := runner.ConfigFromLayout(layout, Q, floatType)
	if err != nil {
		return err
	}
	kr := runner.NewRunner(device, cfg)
	defer kr.Free()
	if err := kr.DefineQFunction(qf); err != nil {
		return err
	}
	out := [][]float64{make([]float64, len(host[0])), make([]float64, len(host[1]))}
	if err := kr.Apply(qf.Name(), in, out); err != nil {
		return err
	}
	diff := 0.0
	for k := range out {
		diff = math.Max(diff, floats.Distance(out[k], host[k], math.Inf(1)))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "device %s (%s, %d partitions): max |host - device| = %.3e\n",
		device.Mode(), floatType, kr.NumPartitions, diff)
	return nil
}

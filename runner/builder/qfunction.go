package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/QFKernel/qfunc"
)

// ArrayNames returns the device array names of a variant's kernel arguments
// in argument order: the packed weights, the inputs, then the outputs.
func ArrayNames(v qfunc.Variant) (inputs, outputs []string) {
	inputs = append(inputs, "qd")
	for b := range v {
		inputs = append(inputs, fmt.Sprintf("u%d", b))
		outputs = append(outputs, fmt.Sprintf("v%d", b))
	}
	return inputs, outputs
}

// GenerateKernelSignature lists the kernel parameters: the partition sizes,
// then a global pointer and an offsets array per input and output.
func GenerateKernelSignature(v qfunc.Variant) string {
	inputs, outputs := ArrayNames(v)
	params := []string{"const int_t* K"}
	for _, name := range inputs {
		params = append(params, fmt.Sprintf("const real_t* %s_global", name),
			fmt.Sprintf("const int_t* %s_offsets", name))
	}
	for _, name := range outputs {
		params = append(params, fmt.Sprintf("real_t* %s_global", name),
			fmt.Sprintf("const int_t* %s_offsets", name))
	}
	return strings.Join(params, ",\n\t")
}

// GenerateQFunctionSource emits the OCCA kernel evaluating every block of v
// at the NQ points of each element. Weight tensors are read column-major,
// entry (r,c) of block b at component offset(b) + TensorComp(r,c).
func (kb *Builder) GenerateQFunctionSource(v qfunc.Variant) (string, error) {
	for b, fs := range v {
		if err := fs.Validate(); err != nil {
			return "", fmt.Errorf("block %d: %w", b, err)
		}
	}
	if len(v) == 0 {
		return "", fmt.Errorf("variant has no field blocks: %w", qfunc.ErrUnsupportedShape)
	}

	var sb strings.Builder
	name := v.Name()
	inputs, outputs := ArrayNames(v)
	offs := v.WeightOffsets()

	fmt.Fprintf(&sb, "@kernel void %s(\n\t%s) {\n", name, GenerateKernelSignature(v))
	sb.WriteString("  for (int part = 0; part < NPART; ++part; @outer) {\n")
	sb.WriteString("    for (int elem = 0; elem < KpartMax; ++elem; @inner) {\n")
	sb.WriteString("      if (elem < K[part]) {\n")
	fmt.Fprintf(&sb, "        const real_t* qd = qd_global + qd_offsets[part] + elem*NQ*%d;\n", v.WeightComps())
	for b, fs := range v {
		fmt.Fprintf(&sb, "        const real_t* %s = %s_global + %s_offsets[part] + elem*NQ*%d;\n",
			inputs[b+1], inputs[b+1], inputs[b+1], fs.NComp)
	}
	for b, fs := range v {
		fmt.Fprintf(&sb, "        real_t* %s = %s_global + %s_offsets[part] + elem*NQ*%d;\n",
			outputs[b], outputs[b], outputs[b], fs.NComp)
	}
	sb.WriteString("        for (int i = 0; i < NQ; ++i) {\n")
	for b, fs := range v {
		kb.writeBlock(&sb, b, fs, offs[b], inputs[b+1], outputs[b])
	}
	sb.WriteString("        }\n")
	sb.WriteString("      }\n")
	sb.WriteString("    }\n")
	sb.WriteString("  }\n")
	sb.WriteString("}\n")
	return sb.String(), nil
}

func comp(buf string, c int) string {
	if c == 0 {
		return buf + "[i]"
	}
	return fmt.Sprintf("%s[i + NQ*%d]", buf, c)
}

func (kb *Builder) writeBlock(sb *strings.Builder, b int, fs qfunc.FieldSpec, off int, u, v string) {
	const indent = "          "
	fmt.Fprintf(sb, "%s// block %d: %d component(s), %v weight\n", indent, b, fs.NComp, fs.Weight)
	if fs.Weight == qfunc.Diagonal {
		for c := 0; c < fs.NComp; c++ {
			fmt.Fprintf(sb, "%s%s = %s * %s;\n", indent, comp(v, c), comp("qd", off), comp(u, c))
		}
		return
	}
	fmt.Fprintf(sb, "%s{\n", indent)
	for c := 0; c < fs.NComp; c++ {
		fmt.Fprintf(sb, "%s  const real_t x%d = %s;\n", indent, c, comp(u, c))
	}
	for r := 0; r < fs.NComp; r++ {
		terms := make([]string, fs.NComp)
		for c := 0; c < fs.NComp; c++ {
			terms[c] = fmt.Sprintf("%s*x%d", comp("qd", off+qfunc.TensorComp(fs.Weight, fs.NComp, r, c)), c)
		}
		fmt.Fprintf(sb, "%s  %s = %s;\n", indent, comp(v, r), strings.Join(terms, " + "))
	}
	fmt.Fprintf(sb, "%s}\n", indent)
}

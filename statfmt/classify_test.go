package statfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		hints   Hints
		want    *VariableDescriptor
		dropped bool
	}{
		{
			name: "scalar",
			line: "system.cpu.ipc 0.756908 # Instructions per cycle",
			want: &VariableDescriptor{Name: "system.cpu.ipc", Kind: KindScalar, Repeat: 1, RawValue: "0.756908"},
		},
		{
			name: "scalar integer",
			line: "sim_ticks 57467500",
			want: &VariableDescriptor{Name: "sim_ticks", Kind: KindScalar, Repeat: 1, RawValue: "57467500"},
		},
		{
			name: "vector entry",
			line: "system.cpu.op_class::IntAlu 1000 # ops",
			want: &VariableDescriptor{Name: "system.cpu.op_class", Kind: KindVector, Repeat: 1, Entries: []string{"IntAlu"}, RawValue: "1000"},
		},
		{
			name: "distribution summary field",
			line: "system.membus.pkt_size::mean 42.5",
			want: &VariableDescriptor{Name: "system.membus.pkt_size", Kind: KindDistribution, Repeat: 1, Entries: []string{"mean"}, RawValue: "42.5"},
		},
		{
			name: "distribution bucket with percent tokens",
			line: "system.membus.pkt_size::0-127 12 12.00% 12.00%",
			want: &VariableDescriptor{Name: "system.membus.pkt_size", Kind: KindDistribution, Repeat: 1, Entries: []string{"0-127"}, RawValue: "12"},
		},
		{
			name: "vector with percent inside comment stays vector",
			line: "system.cpu.op_class::IntMult 50 # 3.2% of ops",
			want: &VariableDescriptor{Name: "system.cpu.op_class", Kind: KindVector, Repeat: 1, Entries: []string{"IntMult"}, RawValue: "50"},
		},
		{
			// Percent tokens are distribution evidence only for
			// subkeyed lines; a bare name has no entry to attach
			// a bucket to.
			name: "percent tokens without subkey stay scalar",
			line: "system.cpu.busy_frac 0.73 73.00%",
			want: &VariableDescriptor{Name: "system.cpu.busy_frac", Kind: KindScalar, Repeat: 1, RawValue: "0.73"},
		},
		{
			name: "non-numeric value is configuration",
			line: "system.l2.size 2MB # cache size",
			want: &VariableDescriptor{Name: "system.l2.size", Kind: KindConfiguration, Repeat: 1, RawValue: "2MB"},
		},
		{
			name:  "hinted numeric name is configuration",
			line:  "system.clk_domain.clock 1000",
			hints: NewHints("system.clk_domain.clock"),
			want:  &VariableDescriptor{Name: "system.clk_domain.clock", Kind: KindConfiguration, Repeat: 1, RawValue: "1000"},
		},
		{
			name:  "hint does not override vector",
			line:  "system.cpu.op_class::IntAlu 1000",
			hints: NewHints("system.cpu.op_class"),
			want:  &VariableDescriptor{Name: "system.cpu.op_class", Kind: KindVector, Repeat: 1, Entries: []string{"IntAlu"}, RawValue: "1000"},
		},
		{
			name: "nan is numeric",
			line: "system.cpu.cpi nan",
			want: &VariableDescriptor{Name: "system.cpu.cpi", Kind: KindScalar, Repeat: 1, RawValue: "nan"},
		},
		{name: "blank line", line: "", dropped: true},
		{name: "comment only", line: "# a comment", dropped: true},
		{name: "section marker", line: "---------- Begin Simulation Statistics ----------", dropped: true},
		{name: "name without value", line: "system.cpu.ipc", dropped: true},
		{name: "name with only comment", line: "system.cpu.ipc # no value", dropped: true},
	}

	var c RuleClassifier
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Classify([]byte(tt.line), tt.hints)
			if tt.dropped {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyDeterminism(t *testing.T) {
	var c RuleClassifier
	line := []byte("system.membus.pkt_size::mean 42.5")
	hints := NewHints("system.clk")
	first, ok := c.Classify(line, hints)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		got, ok := c.Classify(line, hints)
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

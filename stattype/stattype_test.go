package stattype

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring5/statfmt"
)

func scan(t *testing.T, src string) map[string]*statfmt.VariableDescriptor {
	t.Helper()
	r := statfmt.NewReader(strings.NewReader(src), "test", nil, nil)
	for r.Scan() {
	}
	require.NoError(t, r.Err())
	byName := map[string]*statfmt.VariableDescriptor{}
	for _, d := range r.Descriptors() {
		byName[d.Name] = d
	}
	return byName
}

func TestMapVectorWithoutEntries(t *testing.T) {
	_, err := Map("system.cpu.op_class", statfmt.KindVector, 1, nil)
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "system.cpu.op_class", me.Name)
	assert.Contains(t, me.Error(), "no entries")

	_, err = Map("x", statfmt.KindDistribution, 1, nil)
	require.Error(t, err)
}

func TestMapUnknownKind(t *testing.T) {
	_, err := Map("x", statfmt.KindUnknown, 1, nil)
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Contains(t, me.Error(), "unknown kind")
}

func TestScalarColumns(t *testing.T) {
	ds := scan(t, "sim_seconds 2\n---------- Begin Simulation Statistics ----------\nsim_seconds 4\n")
	d := ds["sim_seconds"]
	require.NotNil(t, d)

	v, err := FromDescriptor(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"sim_seconds"}, v.ColumnNames(d.Name))

	cells := v.Columns(d)
	f, ok := cells["sim_seconds"].Float()
	require.True(t, ok)
	// Mean across the two dump blocks.
	assert.InDelta(t, 3.0, f, 1e-12)
}

func TestVectorColumns(t *testing.T) {
	ds := scan(t, "ops::IntAlu 10\nops::IntMult 4\n")
	d := ds["ops"]
	require.NotNil(t, d)

	v, err := FromDescriptor(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops.IntAlu", "ops.IntMult"}, v.ColumnNames(d.Name))

	cells := v.Columns(d)
	f, _ := cells["ops.IntAlu"].Float()
	assert.Equal(t, 10.0, f)
	f, _ = cells["ops.IntMult"].Float()
	assert.Equal(t, 4.0, f)
}

func TestVectorMissingEntry(t *testing.T) {
	v, err := Map("ops", statfmt.KindVector, 1, []string{"IntAlu", "FloatAdd"})
	require.NoError(t, err)

	ds := scan(t, "ops::IntAlu 10\n")
	cells := v.Columns(ds["ops"])
	assert.True(t, cells["ops.FloatAdd"].IsMissing())
}

func TestConfigurationColumns(t *testing.T) {
	ds := scan(t, "system.l2.size 2MB\n")
	d := ds["system.l2.size"]
	v, err := FromDescriptor(d)
	require.NoError(t, err)

	cells := v.Columns(d)
	assert.Equal(t, "2MB", cells["system.l2.size"].Text())
}

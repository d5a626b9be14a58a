package tensor_test

import (
	"fmt"
	"testing"

	"github.com/born-ml/gpubcast/engine"
	"github.com/born-ml/gpubcast/shape"
	"github.com/born-ml/gpubcast/tensor"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostEngine(t testing.TB) *engine.Engine {
	cfg := engine.DefaultConfig()
	cfg.Backend = "host"
	logger, _ := test.NewNullLogger()
	eng, err := engine.Open(cfg, engine.WithLogger(logger))
	require.NoError(t, err)
	return eng
}

func TestPublicAPI(t *testing.T) {
	eng := hostEngine(t)
	defer eng.Close()

	a, err := tensor.FromSlice([]float32{1, 2, 3}, shape.Of(3, 1))
	require.NoError(t, err)
	da, err := tensor.ToDevice(a, eng)
	require.NoError(t, err)
	db, err := tensor.Ones[float32](shape.Of(1, 2)).ToDevice(eng)
	require.NoError(t, err)

	sum, err := tensor.Add(da, db)
	require.NoError(t, err)
	mask, err := tensor.Equal(sum, db)
	require.NoError(t, err)

	h, err := mask.IntoHost()
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, h.DType())
	assert.Equal(t, "[[false, false], [false, false], [false, false]]", h.String())
}

func ExampleAdd() {
	cfg := engine.DefaultConfig()
	cfg.Backend = "host"
	cfg.LogLevel = "error"
	eng, err := engine.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer eng.Close()

	a, _ := tensor.FromSlice([]float32{1, 2, 3}, shape.Of(3, 1))
	b, _ := tensor.FromSlice([]float32{10, 20, 30}, shape.Of(1, 3))
	da, _ := a.ToDevice(eng)
	db, _ := b.ToDevice(eng)

	c, err := tensor.Add(da, db)
	if err != nil {
		panic(err)
	}
	h, _ := c.ToHost()
	fmt.Println(h)
	// Output: [[11, 21, 31], [12, 22, 32], [13, 23, 33]]
}

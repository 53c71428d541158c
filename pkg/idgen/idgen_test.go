package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	gen := New()
	assert.NotNil(t, gen)
	assert.NotNil(t, gen.sf)
}

func TestGenerateHostnameID(t *testing.T) {
	t.Parallel()

	gen := New()

	testcases := []struct {
		name  string
		check func(t *testing.T, id string)
	}{
		{
			name: "generate hostname ID",
			check: func(t *testing.T, id string) {
				assert.NotEmpty(t, id)
				// base36 只包含小写字母和数字，可以直接拼入主机名
				for _, r := range id {
					valid := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z')
					assert.True(t, valid, "unexpected character in hostname ID: %c", r)
				}
			},
		},
		{
			name: "generate multiple IDs are unique",
			check: func(t *testing.T, id string) {
				// 生成多个 ID，确保它们是唯一的
				ids := make(map[string]bool)
				for i := 0; i < 100; i++ {
					newID, err := gen.GenerateHostnameID()
					require.NoError(t, err)
					assert.False(t, ids[newID], "ID should be unique: %s", newID)
					ids[newID] = true
				}
			},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id, err := gen.GenerateHostnameID()
			assert.NoError(t, err)
			if tc.check != nil {
				tc.check(t, id)
			}
		})
	}
}

func TestGenerateRequestID(t *testing.T) {
	t.Parallel()

	gen := New()

	id, err := gen.GenerateRequestID()
	assert.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, id, "req-")
}

func TestDefaultGenerator(t *testing.T) {
	t.Parallel()

	gen1 := DefaultGenerator()
	gen2 := DefaultGenerator()
	assert.Same(t, gen1, gen2)

	id, err := GenerateID()
	assert.NoError(t, err)
	assert.NotZero(t, id)
}

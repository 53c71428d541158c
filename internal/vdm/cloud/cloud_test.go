package cloud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapper(t *testing.T) {
	t.Parallel()

	mapper := NewStatusMapper(map[string]ServerStatus{
		"ACTIVE":  ServerStatusActive,
		"SHUTOFF": ServerStatusShutoff,
	}, ServerStatusUnknown)

	t.Run("known value", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, ServerStatusActive, mapper.Get("ACTIVE"))
		assert.Equal(t, ServerStatusShutoff, mapper.Get("SHUTOFF"))
	})

	t.Run("unknown value falls back to default", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, ServerStatusUnknown, mapper.Get("SOMETHING_NEW"))
		assert.Equal(t, ServerStatusUnknown, mapper.Get(""))
	})

	t.Run("mapping is copied", func(t *testing.T) {
		t.Parallel()
		source := map[string]VolumeStatus{"available": VolumeStatusAvailable}
		m := NewStatusMapper(source, VolumeStatusUnknown)
		source["available"] = VolumeStatusError
		assert.Equal(t, VolumeStatusAvailable, m.Get("available"))
	})
}

func TestExistenceString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "present", ExistencePresent.String())
	assert.Equal(t, "absent", ExistenceAbsent.String())
	assert.Equal(t, "unknown", ExistenceUnknown.String())
	// 零值必须是 unknown，而不是 absent
	var e Existence
	assert.Equal(t, "unknown", e.String())
}

func TestConnectorError(t *testing.T) {
	t.Parallel()

	raw := errors.New("bad flavor")
	err := NewError("CreateServer", "failed to create server 'alice_generic'", raw)
	assert.Contains(t, err.Error(), "CreateServer")
	assert.Contains(t, err.Error(), "alice_generic")
	assert.True(t, errors.Is(err, raw))

	noRaw := NewError("DeleteVolume", "invalid volume id", nil)
	assert.NotContains(t, noRaw.Error(), "<nil>")
}

func TestRegistry(t *testing.T) {
	// Register 使用包级注册表，不能并行

	kind := Kind("test-connector")
	Register(kind, func() (Connector, error) {
		return nil, errors.New("factory called")
	})

	t.Run("registered kind resolves", func(t *testing.T) {
		_, err := New(kind)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "factory called")
	})

	t.Run("unknown kind fails with registered list", func(t *testing.T) {
		_, err := New(Kind("nonexistent"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonexistent")
		assert.Contains(t, err.Error(), string(kind))
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.Panics(t, func() {
			Register(kind, func() (Connector, error) { return nil, nil })
		})
	})

	t.Run("nil factory panics", func(t *testing.T) {
		assert.Panics(t, func() {
			Register(Kind("nil-factory"), nil)
		})
	})

	assert.Contains(t, Kinds(), kind)
}

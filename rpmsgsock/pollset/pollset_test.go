package pollset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RegisterNotifyUnregister(t *testing.T) {
	tbl := New(2)

	var got Events
	slot, err := tbl.Register(func(events Events) { got = events })
	require.NoError(t, err)

	tbl.Notify(In | Out)
	assert.Equal(t, In|Out, got)

	tbl.Unregister(slot)
	got = 0
	tbl.Notify(Hup)
	assert.Equal(t, Events(0), got, "unregistered waiter must not be notified")
}

func TestTable_RegisterReturnsErrBusyWhenFull(t *testing.T) {
	tbl := New(1)
	_, err := tbl.Register(func(Events) {})
	require.NoError(t, err)

	_, err = tbl.Register(func(Events) {})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTable_UnregisterFreesSlotForReuse(t *testing.T) {
	tbl := New(1)
	slot, _ := tbl.Register(func(Events) {})
	tbl.Unregister(slot)

	_, err := tbl.Register(func(Events) {})
	require.NoError(t, err)
}

package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

func TestPutGetRemove(t *testing.T) {
	r := NewRegistry()
	sess := &models.Session{ID: uuid.New(), Status: models.StatusInProgress}

	_, ok := r.Get(sess.ID)
	require.False(t, ok)

	r.Put(sess)
	got, ok := r.Get(sess.ID)
	require.True(t, ok)
	require.Same(t, sess, got)
	require.True(t, r.Contains(sess.ID))
	require.Equal(t, 1, r.Len())

	require.True(t, r.Remove(sess.ID))
	require.False(t, r.Contains(sess.ID))
	require.Equal(t, 0, r.Len())
}

func TestRemoveReportsFirstRemovalOnly(t *testing.T) {
	r := NewRegistry()
	sess := &models.Session{ID: uuid.New()}
	r.Put(sess)

	require.True(t, r.Remove(sess.ID))
	require.False(t, r.Remove(sess.ID), "second removal must lose the finalize gate")
	require.False(t, r.Remove(uuid.New()), "unknown id must lose the finalize gate")
}

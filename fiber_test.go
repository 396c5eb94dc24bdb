package loom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFiberRunsEntryOnFirstResume(t *testing.T) {
	var ran bool
	f := NewFiber(func() { ran = true }, DefaultStackSize64)

	require.Equal(t, FiberRunnable, f.State())
	require.NoError(t, f.Resume(ResumeNormal))
	require.True(t, ran)
	require.Equal(t, FiberTerminated, f.State())
}

func TestFiberYieldSuspendsAndResumes(t *testing.T) {
	var reasons []ResumeReason
	f := NewFiber(func() {
		reasons = append(reasons, ResumeNormal)
		r := f.Yield()
		reasons = append(reasons, r)
	}, DefaultStackSize64)

	require.NoError(t, f.Resume(ResumeNormal))
	require.Equal(t, FiberSuspended, f.State())
	require.NoError(t, f.Resume(ResumeIOReady))
	require.Equal(t, FiberTerminated, f.State())
	require.Equal(t, []ResumeReason{ResumeNormal, ResumeIOReady}, reasons)
}

func TestFiberResumeOnTerminatedReturnsError(t *testing.T) {
	f := NewFiber(func() {}, DefaultStackSize64)
	require.NoError(t, f.Resume(ResumeNormal))
	require.ErrorIs(t, f.Resume(ResumeNormal), ErrFiberTerminated)
}

func TestFiberPanicPropagatesToResumeCaller(t *testing.T) {
	f := NewFiber(func() { panic("boom") }, DefaultStackSize64)
	require.PanicsWithValue(t, "boom", func() {
		_ = f.Resume(ResumeNormal)
	})
	require.Equal(t, FiberTerminated, f.State())
}

func TestFiberResetRejectsNonTerminated(t *testing.T) {
	f := NewFiber(func() { f.Yield() }, DefaultStackSize64)
	require.NoError(t, f.Resume(ResumeNormal))
	require.Equal(t, FiberSuspended, f.State())
	require.ErrorIs(t, f.Reset(func() {}), ErrFiberNotTerminated)
}

func TestFiberResetRecyclesForNewEntry(t *testing.T) {
	f := NewFiber(func() {}, DefaultStackSize64)
	require.NoError(t, f.Resume(ResumeNormal))

	var ranSecond bool
	require.NoError(t, f.Reset(func() { ranSecond = true }))
	require.Equal(t, FiberRunnable, f.State())
	require.NoError(t, f.Resume(ResumeNormal))
	require.True(t, ranSecond)
}

// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package progress

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/overlay"
	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
	"github.com/nearfi/passkeywallet/pkg/secureconfirm"
)

func progressMsg(requestID string, phase secureconfirm.Phase) rpcenvelope.Message {
	return rpcenvelope.NewProgress(requestID, string(phase), rpcenvelope.StatusProgress, "")
}

func TestDefaultPhaseHeuristicsShowsOnlyKnownPhases(t *testing.T) {
	require := require.New(t)
	require.Equal(DemandShow, DefaultPhaseHeuristics(string(secureconfirm.PhaseSignUserConfirmation)))
	require.Equal(DemandShow, DefaultPhaseHeuristics(string(secureconfirm.PhaseDLScanning)))
	require.Equal(DemandHide, DefaultPhaseHeuristics(string(secureconfirm.PhaseSignBroadcasting)))
	require.Equal(DemandNone, DefaultPhaseHeuristics("SOME_UNKNOWN_PHASE"))
}

func TestDispatchUpdatesSubscriberAndOverlay(t *testing.T) {
	require := require.New(t)
	ov := overlay.New(nil)
	bus := New(ov, nil)

	var mu sync.Mutex
	var seen []string
	bus.Register("req-1", false, func(p rpcenvelope.ProgressPayload) {
		mu.Lock()
		seen = append(seen, p.Phase)
		mu.Unlock()
	})

	require.NoError(bus.Dispatch(progressMsg("req-1", secureconfirm.PhaseSignUserConfirmation)))
	require.Eventually(func() bool {
		return ov.Style().Mode == overlay.ModeFullscreen
	}, time.Second, 5*time.Millisecond)

	require.NoError(bus.Dispatch(progressMsg("req-1", secureconfirm.PhaseSignBroadcasting)))
	require.Eventually(func() bool {
		return ov.Style().Mode == overlay.ModeHidden
	}, time.Second, 5*time.Millisecond)

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestOverlayVisibleWhileAnyActiveRequestDemandsShow(t *testing.T) {
	require := require.New(t)
	ov := overlay.New(nil)
	bus := New(ov, nil)

	bus.Register("req-a", false, nil)
	bus.Register("req-b", false, nil)

	require.NoError(bus.Dispatch(progressMsg("req-a", secureconfirm.PhaseSignBroadcasting)))
	require.NoError(bus.Dispatch(progressMsg("req-b", secureconfirm.PhaseLoginWebauthnAssertion)))

	require.Eventually(func() bool {
		return ov.Style().Mode == overlay.ModeFullscreen
	}, time.Second, 5*time.Millisecond)

	bus.Unregister("req-b")
	require.Eventually(func() bool {
		return ov.Style().Mode == overlay.ModeHidden
	}, time.Second, 5*time.Millisecond)
}

func TestStickySubscriberDemandNeverDowngradesToHide(t *testing.T) {
	require := require.New(t)
	ov := overlay.New(nil)
	bus := New(ov, nil)

	bus.Register("req-sticky", true, nil)
	require.NoError(bus.Dispatch(progressMsg("req-sticky", secureconfirm.PhaseRegWebauthnVerification)))
	require.Eventually(func() bool {
		return ov.Style().Mode == overlay.ModeFullscreen
	}, time.Second, 5*time.Millisecond)

	require.NoError(bus.Dispatch(progressMsg("req-sticky", secureconfirm.PhaseRegContractRegistration)))
	time.Sleep(20 * time.Millisecond)
	require.Equal(overlay.ModeFullscreen, ov.Style().Mode)
}

func TestDispatchIgnoresUnknownRequestID(t *testing.T) {
	require := require.New(t)
	bus := New(overlay.New(nil), nil)
	err := bus.Dispatch(progressMsg("does-not-exist", secureconfirm.PhaseSignUserConfirmation))
	require.NoError(err)
}

func TestDispatchIgnoresNonProgressMessages(t *testing.T) {
	require := require.New(t)
	bus := New(overlay.New(nil), nil)
	raw, _ := json.Marshal(map[string]any{"ok": true})
	err := bus.Dispatch(rpcenvelope.Message{Type: rpcenvelope.TypeResult, RequestID: "req-1", Payload: raw})
	require.NoError(err)
}

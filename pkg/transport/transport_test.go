// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearfi/passkeywallet/pkg/rpcenvelope"
)

// fakeChild answers CONNECT with READY on its own Port end, the way a
// mounted wallet-core host would once its Serve loop observes CONNECT.
func fakeChild(t *testing.T, port *rpcenvelope.ChanPort, protocolVersion string) {
	t.Helper()
	go func() {
		for {
			msg, err := port.Recv(context.Background())
			if err != nil {
				return
			}
			if msg.Type == rpcenvelope.TypeConnect {
				_ = port.Send(rpcenvelope.NewReady(protocolVersion))
			}
		}
	}()
}

func TestEnsureMountedIdempotentSameOrigin(t *testing.T) {
	require := require.New(t)
	parentEnd, childEnd := rpcenvelope.NewChanPortPair(4)
	_ = childEnd
	dialed := 0
	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		dialed++
		return parentEnd, nil
	}
	tr := New(dial, time.Second)

	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))
	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))
	require.Equal(1, dialed)
}

func TestEnsureMountedRejectsSecondOrigin(t *testing.T) {
	require := require.New(t)
	parentEnd, _ := rpcenvelope.NewChanPortPair(4)
	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return parentEnd, nil
	}
	tr := New(dial, time.Second)

	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))
	err := tr.EnsureMounted(context.Background(), "https://other.example")
	require.ErrorIs(err, ErrMultipleWalletOrigins)
}

func TestConnectSucceedsAndDedupesConcurrentCallers(t *testing.T) {
	require := require.New(t)
	parentEnd, childEnd := rpcenvelope.NewChanPortPair(4)
	fakeChild(t, childEnd, "1")

	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return parentEnd, nil
	}
	tr := New(dial, 2*time.Second, WithExpectedProtocolVersion("1"))
	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Connect(context.Background())
			results[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		require.NoError(err)
	}
	require.Equal("1", tr.ProtocolVersion())
}

func TestConnectTimesOutWithoutReady(t *testing.T) {
	require := require.New(t)
	parentEnd, _ := rpcenvelope.NewChanPortPair(4)
	// No fake child: nothing ever answers CONNECT with READY.
	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return parentEnd, nil
	}
	tr := New(dial, 300*time.Millisecond)
	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))

	_, err := tr.Connect(context.Background())
	require.ErrorIs(err, ErrHandshakeTimeout)
}

func TestConnectRejectsProtocolVersionMismatch(t *testing.T) {
	require := require.New(t)
	parentEnd, childEnd := rpcenvelope.NewChanPortPair(4)
	fakeChild(t, childEnd, "2")

	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return parentEnd, nil
	}
	tr := New(dial, time.Second, WithExpectedProtocolVersion("1"))
	require.NoError(tr.EnsureMounted(context.Background(), "https://wallet.example"))

	_, err := tr.Connect(context.Background())
	require.Error(err)
	require.Contains(err.Error(), "protocol version mismatch")
}

func TestConnectBeforeEnsureMountedFails(t *testing.T) {
	require := require.New(t)
	tr := New(func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return nil, nil
	}, time.Second)

	_, err := tr.Connect(context.Background())
	require.Error(err)
}

func TestDisposeReleasesMountAndAllowsNewOrigin(t *testing.T) {
	require := require.New(t)
	parentEnd1, _ := rpcenvelope.NewChanPortPair(4)
	parentEnd2, _ := rpcenvelope.NewChanPortPair(4)
	origins := []string{"https://wallet.example", "https://other.example"}
	call := 0
	dial := func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		require.Equal(origins[call], origin)
		call++
		if call == 1 {
			return parentEnd1, nil
		}
		return parentEnd2, nil
	}
	tr := New(dial, time.Second)

	require.NoError(tr.EnsureMounted(context.Background(), origins[0]))
	require.NoError(tr.Dispose())
	require.NoError(tr.EnsureMounted(context.Background(), origins[1]))
}

func TestDisposeOnUnmountedIsNoop(t *testing.T) {
	require := require.New(t)
	tr := New(func(ctx context.Context, origin string) (rpcenvelope.Port, error) {
		return nil, nil
	}, time.Second)
	require.NoError(tr.Dispose())
}

package encryption

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink-backend/pkg/cryptobox"
)

func TestSealPoolRunsTasks(t *testing.T) {
	pool := NewSealPool(2, nil)
	defer pool.Shutdown()

	sender, err := cryptobox.GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := cryptobox.GenerateKeyPair()
	require.NoError(t, err)

	sessionKey, err := cryptobox.NewSessionKey()
	require.NoError(t, err)

	result := <-pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: recipient.PublicKey,
		SenderPrivateKey:   sender.PrivateKey,
	})

	require.NoError(t, result.Err)

	opened, err := cryptobox.Open(result.SealedKey, sender.PublicKey, recipient.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, opened)
}

func TestSealPoolConcurrentTasks(t *testing.T) {
	pool := NewSealPool(4, nil)
	defer pool.Shutdown()

	sender, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	const n = 32
	results := make([]<-chan SealResult, n)
	recipients := make([]*cryptobox.KeyPair, n)
	for i := 0; i < n; i++ {
		recipients[i], _ = cryptobox.GenerateKeyPair()
		results[i] = pool.Submit(SealTask{
			SessionKey:         sessionKey,
			RecipientPublicKey: recipients[i].PublicKey,
			SenderPrivateKey:   sender.PrivateKey,
		})
	}

	for i := 0; i < n; i++ {
		result := <-results[i]
		require.NoError(t, result.Err)

		opened, err := cryptobox.Open(result.SealedKey, sender.PublicKey, recipients[i].PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, sessionKey, opened)
	}
}

func TestSealPoolFailedTaskRejectsOnlyThatTask(t *testing.T) {
	pool := NewSealPool(1, nil)
	defer pool.Shutdown()

	sender, _ := cryptobox.GenerateKeyPair()
	recipient, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	// Bad recipient key fails the task and terminates its worker
	bad := <-pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: "not-a-valid-key",
		SenderPrivateKey:   sender.PrivateKey,
	})
	assert.Error(t, bad.Err)

	// The pool self-heals: a replacement worker serves the next task
	good := <-pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: recipient.PublicKey,
		SenderPrivateKey:   sender.PrivateKey,
	})
	require.NoError(t, good.Err)
	assert.NotEmpty(t, good.SealedKey)
}

func TestSealPoolSurvivesRepeatedFailures(t *testing.T) {
	pool := NewSealPool(2, nil)
	defer pool.Shutdown()

	sender, _ := cryptobox.GenerateKeyPair()
	recipient, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	for i := 0; i < 10; i++ {
		bad := <-pool.Submit(SealTask{
			SessionKey:         sessionKey,
			RecipientPublicKey: "garbage",
			SenderPrivateKey:   sender.PrivateKey,
		})
		assert.Error(t, bad.Err)
	}

	good := <-pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: recipient.PublicKey,
		SenderPrivateKey:   sender.PrivateKey,
	})
	assert.NoError(t, good.Err)
}

func TestSealPoolDrainsQueueAfterWorkerFailure(t *testing.T) {
	// Single worker: every task after the first waits in the queue. A failed
	// task must not strand the tasks queued behind it.
	pool := NewSealPool(1, nil)
	defer pool.Shutdown()

	sender, _ := cryptobox.GenerateKeyPair()
	recipient, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	bad := pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: "not-a-valid-key",
		SenderPrivateKey:   sender.PrivateKey,
	})

	const queued = 4
	good := make([]<-chan SealResult, queued)
	for i := 0; i < queued; i++ {
		good[i] = pool.Submit(SealTask{
			SessionKey:         sessionKey,
			RecipientPublicKey: recipient.PublicKey,
			SenderPrivateKey:   sender.PrivateKey,
		})
	}

	select {
	case result := <-bad:
		assert.Error(t, result.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("failed task never resolved")
	}

	for i := 0; i < queued; i++ {
		select {
		case result := <-good[i]:
			require.NoError(t, result.Err)
			assert.NotEmpty(t, result.SealedKey)
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d queued behind the failure never completed", i)
		}
	}
}

func TestSealPoolConcurrentSubmitAndShutdown(t *testing.T) {
	pool := NewSealPool(2, nil)

	sender, _ := cryptobox.GenerateKeyPair()
	recipient, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	const n = 64
	results := make(chan (<-chan SealResult), n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- pool.Submit(SealTask{
				SessionKey:         sessionKey,
				RecipientPublicKey: recipient.PublicKey,
				SenderPrivateKey:   sender.PrivateKey,
			})
		}()
	}

	pool.Shutdown()
	wg.Wait()
	close(results)

	// Every submit resolves: sealed before the close, rejected after.
	// Neither side may panic or hang.
	for ch := range results {
		select {
		case result := <-ch:
			if result.Err != nil {
				assert.ErrorIs(t, result.Err, ErrPoolClosed)
			} else {
				assert.NotEmpty(t, result.SealedKey)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("submit during shutdown never resolved")
		}
	}
}

func TestSealPoolShutdown(t *testing.T) {
	pool := NewSealPool(2, nil)

	sender, _ := cryptobox.GenerateKeyPair()
	recipient, _ := cryptobox.GenerateKeyPair()
	sessionKey, _ := cryptobox.NewSessionKey()

	result := <-pool.Submit(SealTask{
		SessionKey:         sessionKey,
		RecipientPublicKey: recipient.PublicKey,
		SenderPrivateKey:   sender.PrivateKey,
	})
	require.NoError(t, result.Err)

	pool.Shutdown()
	// Idempotent
	pool.Shutdown()

	select {
	case rejected := <-pool.Submit(SealTask{SessionKey: sessionKey}):
		assert.ErrorIs(t, rejected.Err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("submit after shutdown did not resolve")
	}
}

func TestDefaultPoolIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

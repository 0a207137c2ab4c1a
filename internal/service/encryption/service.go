// Package encryption implements the message fan-out pipeline: one AEAD pass
// over the plaintext under a fresh session key, then one sealed copy of that
// key per unique recipient. Large fan-outs dispatch sealing to the worker
// pool; small ones seal inline in the calling goroutine.
package encryption

import (
	"fmt"
	"strconv"
	"time"

	"cipherlink-backend/pkg/constants"
	"cipherlink-backend/pkg/cryptobox"
	"cipherlink-backend/pkg/metrics"
)

// Identity is the sender's key material: the private key signs the seals,
// the public key lets recipients open them.
type Identity struct {
	ID         int64
	PublicKey  string
	PrivateKey string
}

// Recipient is one message recipient with their public box key
type Recipient struct {
	ID        int64
	PublicKey string
}

// Envelope is the encryption result: one shared ciphertext plus one sealed
// session key per participant, keyed by decimal user id. Every key must be
// independently openable by that user's private key; a participant missing
// here can never read the message.
type Envelope struct {
	Ciphertext    string            `json:"ciphertext"`
	EncryptedKeys map[string]string `json:"encrypted_keys"`
}

// Service orchestrates message encryption and decryption
type Service struct {
	pool      *SealPool
	threshold int
	metrics   *metrics.Metrics
}

// NewService creates an encryption service. A nil pool uses the process-wide
// default; threshold < 1 uses the default parallel threshold.
func NewService(pool *SealPool, threshold int, m *metrics.Metrics) *Service {
	if threshold < 1 {
		threshold = constants.DefaultParallelThreshold
	}
	return &Service{
		pool:      pool,
		threshold: threshold,
		metrics:   m,
	}
}

// EncryptForParticipants encrypts plaintext once under a fresh session key
// and seals that key for every unique recipient plus the sender. Recipients
// are deduplicated by id; entries with id <= 0 are dropped; the sender is
// always included exactly once so they can re-read their own message.
//
// When the unique participant count reaches the parallel threshold, sealing
// is dispatched to the worker pool; a pooled failure for one recipient falls
// back to an inline seal rather than failing the whole message. Only a
// failing fallback aborts, because a partial key set would leave some
// intended recipient permanently unable to read the message.
func (s *Service) EncryptForParticipants(plaintext string, sender Identity, recipients []Recipient) (*Envelope, error) {
	if sender.ID <= 0 {
		return nil, fmt.Errorf("sender id is required")
	}
	if sender.PublicKey == "" || sender.PrivateKey == "" {
		return nil, fmt.Errorf("sender key pair is required")
	}

	// Dedupe by id, drop invalid entries, force-include the sender
	participants := make(map[int64]string, len(recipients)+1)
	for _, r := range recipients {
		if r.ID <= 0 {
			continue
		}
		participants[r.ID] = r.PublicKey
	}
	participants[sender.ID] = sender.PublicKey

	sessionKey, err := cryptobox.NewSessionKey()
	if err != nil {
		return nil, err
	}
	// Scrub key material once every seal has settled
	defer cryptobox.Zero(sessionKey)

	// The single body encryption strictly precedes all sealing: every
	// sealed key unlocks this one ciphertext
	ciphertext, err := cryptobox.EncryptAEAD([]byte(plaintext), sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message body: %w", err)
	}

	encryptedKeys := make(map[string]string, len(participants))

	if len(participants) >= s.threshold {
		err = s.sealPooled(sessionKey, sender, participants, encryptedKeys)
	} else {
		err = s.sealInline(sessionKey, sender, participants, encryptedKeys)
	}
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Ciphertext:    ciphertext,
		EncryptedKeys: encryptedKeys,
	}, nil
}

// sealInline seals sequentially in the calling goroutine. Pool dispatch has
// fixed overhead that is not worth paying for one or two recipients.
func (s *Service) sealInline(sessionKey []byte, sender Identity, participants map[int64]string, out map[string]string) error {
	for id, publicKey := range participants {
		start := time.Now()
		sealed, err := cryptobox.Seal(sessionKey, publicKey, sender.PrivateKey)
		s.recordSeal("inline", err, start)
		if err != nil {
			return fmt.Errorf("failed to seal session key for user %d: %w", id, err)
		}
		out[strconv.FormatInt(id, 10)] = sealed
	}
	return nil
}

// sealPooled dispatches one task per participant and waits for all of them
// to settle. Completion order is irrelevant: each result lands on its own
// key in the output map.
func (s *Service) sealPooled(sessionKey []byte, sender Identity, participants map[int64]string, out map[string]string) error {
	pool := s.pool
	if pool == nil {
		pool = Default()
	}

	type pending struct {
		id        int64
		publicKey string
		result    <-chan SealResult
	}

	pendings := make([]pending, 0, len(participants))
	dispatched := time.Now()
	for id, publicKey := range participants {
		pendings = append(pendings, pending{
			id:        id,
			publicKey: publicKey,
			result: pool.Submit(SealTask{
				SessionKey:         sessionKey,
				RecipientPublicKey: publicKey,
				SenderPrivateKey:   sender.PrivateKey,
			}),
		})
	}

	for _, p := range pendings {
		result := <-p.result
		if result.Err == nil {
			s.recordSeal("pooled", nil, dispatched)
			out[strconv.FormatInt(p.id, 10)] = result.SealedKey
			continue
		}
		s.recordSeal("pooled", result.Err, dispatched)

		// One worker's crash must never block delivery to everyone else:
		// re-seal this recipient inline
		start := time.Now()
		sealed, err := cryptobox.Seal(sessionKey, p.publicKey, sender.PrivateKey)
		s.recordSeal("fallback", err, start)
		if err != nil {
			return fmt.Errorf("failed to seal session key for user %d: %w", p.id, err)
		}
		out[strconv.FormatInt(p.id, 10)] = sealed
	}

	return nil
}

// DecryptForUser recovers the session key from the user's sealed copy and
// decrypts the shared ciphertext. Unseal failures propagate verbatim as
// cryptobox.ErrKeyUnseal.
func (s *Service) DecryptForUser(ciphertext, encryptedSessionKey, myPrivateKey, senderPublicKey string) (string, error) {
	sessionKey, err := cryptobox.Open(encryptedSessionKey, senderPublicKey, myPrivateKey)
	if err != nil {
		return "", err
	}
	defer cryptobox.Zero(sessionKey)

	plaintext, err := cryptobox.DecryptAEAD(ciphertext, sessionKey)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (s *Service) recordSeal(path string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordSeal(path, result, time.Since(start))
}

// Package auth talks to the external session server that vouches for
// online-mode players. Calls block and therefore run on pool threads,
// never on a connection's I/O goroutines.
package auth

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/pool"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://sessionserver.mojang.com/session/minecraft/hasJoined"

// Profile is the identity the session server returns.
type Profile struct {
	ID   uuid.UUID
	Name string
}

// Result is delivered to the authentication callback.
type Result struct {
	Profile Profile
	Err     error
}

// Authenticator performs hasJoined lookups.
type Authenticator struct {
	client  *retryablehttp.Client
	baseURL string
	log     zerolog.Logger
}

// New creates an authenticator with a retrying HTTP client.
func New(log zerolog.Logger) *Authenticator {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &Authenticator{
		client:  client,
		baseURL: defaultBaseURL,
		log:     log.With().Str("component", "auth").Logger(),
	}
}

// SetBaseURL overrides the session server endpoint.
func (a *Authenticator) SetBaseURL(u string) { a.baseURL = u }

// ServerHash computes the digest the client sent to the session server:
// SHA-1 of serverID || sharedSecret || publicKeyDER, rendered as a
// signed hex number (two's complement with a leading minus).
func ServerHash(serverID string, sharedSecret, publicKeyDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedSecret)
	h.Write(publicKeyDER)
	sum := h.Sum(nil)

	neg := sum[0]&0x80 != 0
	n := new(big.Int).SetBytes(sum)
	if neg {
		// two's complement
		max := new(big.Int).Lsh(big.NewInt(1), uint(len(sum)*8))
		n.Sub(n, max)
	}
	return n.Text(16)
}

// HasJoined asks the session server whether username completed the
// handshake identified by hash. Blocking.
func (a *Authenticator) HasJoined(username, hash string) (Profile, error) {
	u := fmt.Sprintf("%s?username=%s&serverId=%s",
		a.baseURL, url.QueryEscape(username), url.QueryEscape(hash))
	resp, err := a.client.Get(u)
	if err != nil {
		return Profile{}, fmt.Errorf("auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return Profile{}, fmt.Errorf("auth: session server rejected %s (status %d)", username, resp.StatusCode)
	}

	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("auth: %w", err)
	}

	id, err := game.ParseUUID(strings.TrimSpace(body.ID))
	if err != nil {
		return Profile{}, fmt.Errorf("auth: bad profile id: %w", err)
	}
	return Profile{ID: id, Name: body.Name}, nil
}

// Check runs HasJoined on a pool thread and delivers the outcome to cb.
func (a *Authenticator) Check(p *pool.Pool, username, hash string, cb func(Result)) {
	p.Enqueue(func(any) {
		profile, err := a.HasJoined(username, hash)
		if err != nil {
			a.log.Warn().Err(err).Str("username", username).Msg("authentication failed")
		}
		cb(Result{Profile: profile, Err: err})
	}, nil)
}

// Package turn derives short-lived TURN relay credentials following the
// TURN REST API convention: username is "{expiryEpoch}:{label}" and the
// credential is the base64 HMAC-SHA1 of the username under the shared
// secret. The construction must stay bit-for-bit compatible with standard
// TURN servers; SHA-1 here is a wire-format requirement, not a hash choice.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DefaultCredentialTTL matches the common coturn REST credential lifetime.
const DefaultCredentialTTL = 5 * time.Minute

// refreshMargin is how close to expiry a cached credential may get before
// it is regenerated.
const refreshMargin = 30 * time.Second

// Credential is an ephemeral username/credential pair for a relay server.
type Credential struct {
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ICEServer mirrors the RTCIceServer shape handed to browsers.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Issue derives a credential for label valid for ttl from now.
func Issue(label, secret string, ttl time.Duration) Credential {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	expiresAt := time.Now().Add(ttl)
	username := fmt.Sprintf("%d:%s", expiresAt.Unix(), label)
	return Credential{
		Username:   username,
		Credential: sign(secret, username),
		ExpiresAt:  expiresAt,
	}
}

// sign computes base64(HMAC-SHA1(secret, message)) per the TURN REST
// convention.
func sign(secret, message string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Issuer hands out ICE server lists, caching the TURN credential so repeated
// fetches within one connection attempt see stable values.
type Issuer struct {
	stunURLs []string
	turnURLs []string
	secret   string
	label    string
	ttl      time.Duration

	mu     sync.Mutex
	cached *Credential
}

// NewIssuer configures the issuer. With an empty secret or no TURN URLs only
// the STUN entries are served.
func NewIssuer(stunURLs, turnURLs []string, secret, label string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	if label == "" {
		label = "support"
	}
	return &Issuer{
		stunURLs: stunURLs,
		turnURLs: turnURLs,
		secret:   secret,
		label:    label,
		ttl:      ttl,
	}
}

// TURNEnabled reports whether relay credentials can be issued.
func (i *Issuer) TURNEnabled() bool {
	return i.secret != "" && len(i.turnURLs) > 0
}

// credential returns the cached credential, regenerating it when it is
// within the refresh margin of expiry.
func (i *Issuer) credential() Credential {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached == nil || time.Until(i.cached.ExpiresAt) < refreshMargin {
		fresh := Issue(i.label, i.secret, i.ttl)
		i.cached = &fresh
	}
	return *i.cached
}

// ICEServers returns the STUN entries plus, when configured, one TURN entry
// carrying fresh relay credentials.
func (i *Issuer) ICEServers() []ICEServer {
	servers := make([]ICEServer, 0, 2)
	if len(i.stunURLs) > 0 {
		servers = append(servers, ICEServer{URLs: append([]string(nil), i.stunURLs...)})
	}
	if i.TURNEnabled() {
		cred := i.credential()
		servers = append(servers, ICEServer{
			URLs:       append([]string(nil), i.turnURLs...),
			Username:   cred.Username,
			Credential: cred.Credential,
		})
	}
	return servers
}

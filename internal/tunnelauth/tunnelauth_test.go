package tunnelauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecrets = map[string][]byte{
	"agent-P": []byte("super-secret-key"),
}

func testSigner() *JWTSigner {
	return NewJWTSigner(func(pubkey string) ([]byte, bool) {
		s, ok := testSecrets[pubkey]
		return s, ok
	})
}

func TestChallengeResponseHappyPath(t *testing.T) {
	signer := testSigner()
	st := NewState(signer, 5*time.Minute)
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthNostr, AllowedAgents: []string{"agent-P"}}})

	chs := st.Challenges()
	require.Len(t, chs, 1)
	c := chs[0]

	sig, err := Sign(testSecrets["agent-P"], "agent-P", c.Value)
	require.NoError(t, err)

	err = st.VerifyResponse(Response{TunnelID: "T", Challenge: c.Value, Pubkey: "agent-P", Signature: sig})
	require.NoError(t, err)

	assert.True(t, st.IsAuthorized("T"))

	statuses := st.Status()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Authorized)
	assert.Equal(t, "agent-P", statuses[0].Pubkey)
}

func TestChallengeExpiryClearsResponse(t *testing.T) {
	signer := testSigner()
	st := NewState(signer, 200*time.Millisecond) // short TTL, outlived by the sleep below
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthNostr, AllowedAgents: []string{"agent-P"}}})

	chs := st.Challenges()
	c := chs[0]
	sig, _ := Sign(testSecrets["agent-P"], "agent-P", c.Value)
	require.NoError(t, st.VerifyResponse(Response{TunnelID: "T", Challenge: c.Value, Pubkey: "agent-P", Signature: sig}))
	assert.True(t, st.IsAuthorized("T"))

	time.Sleep(300 * time.Millisecond)
	chs2 := st.Challenges()
	assert.NotEqual(t, c.Value, chs2[0].Value)
	assert.False(t, st.IsAuthorized("T"))
}

func TestAgentNotAllowedRejected(t *testing.T) {
	signer := testSigner()
	st := NewState(signer, 5*time.Minute)
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthNostr, AllowedAgents: []string{"agent-P"}}})

	c := st.Challenges()[0]
	testSecrets["agent-Q"] = []byte("other-secret")
	sig, _ := Sign(testSecrets["agent-Q"], "agent-Q", c.Value)

	err := st.VerifyResponse(Response{TunnelID: "T", Challenge: c.Value, Pubkey: "agent-Q", Signature: sig})
	require.Error(t, err)
}

func TestNoneAuthAlwaysAuthorized(t *testing.T) {
	st := NewState(testSigner(), 5*time.Minute)
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthNone}})
	assert.True(t, st.IsAuthorized("T"))
}

func TestPSKNeverAuthorizedViaThisFlow(t *testing.T) {
	st := NewState(testSigner(), 5*time.Minute)
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthPSK}})
	assert.False(t, st.IsAuthorized("T"))
}

func TestRemovingEndpointDropsStoredResponse(t *testing.T) {
	signer := testSigner()
	st := NewState(signer, 5*time.Minute)
	st.SetEndpoints([]Endpoint{{ID: "T", Auth: AuthNostr, AllowedAgents: []string{"agent-P"}}})

	c := st.Challenges()[0]
	sig, _ := Sign(testSecrets["agent-P"], "agent-P", c.Value)
	require.NoError(t, st.VerifyResponse(Response{TunnelID: "T", Challenge: c.Value, Pubkey: "agent-P", Signature: sig}))
	assert.True(t, st.IsAuthorized("T"))

	st.SetEndpoints([]Endpoint{})
	assert.False(t, st.IsAuthorized("T"))
}

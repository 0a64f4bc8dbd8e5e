package staking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/tribunal/internal/primitives"
)

func account(b byte) primitives.AccountID {
	var a primitives.AccountID
	a[0] = b
	return a
}

func testParams() Params {
	return Params{MinJurorStake: 100, MaxCourtParticipants: 4, ExitCooldown: 10}
}

// requirePoolInvariant checks that pool weights sum to the stake of active members.
func requirePoolInvariant(t *testing.T, r *Registry) {
	t.Helper()
	var stakes, weights primitives.Balance
	for _, p := range r.Participants() {
		if p.IsActive() {
			stakes += p.Stake
		}
	}
	for _, e := range r.Pool().Entries() {
		require.NotZero(t, e.Weight)
		weights += e.Weight
	}
	require.Equal(t, stakes, weights)
	require.Equal(t, weights, r.Pool().Total())
}

func TestJoin(t *testing.T) {
	r := NewRegistry(testParams())

	_, _, err := r.Join(account(1), 99, 0)
	require.ErrorIs(t, err, ErrInsufficientStake)

	stake, _, err := r.Join(account(1), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(100), stake)

	_, _, err = r.Join(account(1), 200, 0)
	require.ErrorIs(t, err, ErrAlreadyPoolMember)

	stake, err = r.IncreaseStake(account(1), 50)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(150), stake)

	for i := byte(2); i <= 4; i++ {
		_, _, err = r.Join(account(i), 100, 0)
		require.NoError(t, err)
	}
	_, _, err = r.Join(account(5), 100, 0)
	require.ErrorIs(t, err, ErrMaxParticipantsReached)

	assert.Equal(t, 4, r.ActiveCount())
	requirePoolInvariant(t, r)
}

func TestJoinFullPoolEvictsLowest(t *testing.T) {
	r := NewRegistry(testParams())
	for i := byte(1); i <= 4; i++ {
		_, _, err := r.Join(account(i), 100*primitives.Balance(i)+100, 0)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delegate(account(3), account(1), 150))

	// account 1 weighs 350 with the delegation, account 3 only 250
	_, _, err := r.Join(account(5), 250, 7)
	require.ErrorIs(t, err, ErrMaxParticipantsReached)

	stake, evicted, err := r.Join(account(5), 251, 7)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(251), stake)
	require.NotNil(t, evicted)
	assert.Equal(t, account(3), *evicted)
	assert.Equal(t, 4, r.ActiveCount())

	p, ok := r.Participant(account(3))
	require.True(t, ok)
	assert.False(t, p.IsActive())
	require.NotNil(t, p.ExitRequestedAt)
	assert.Equal(t, primitives.BlockNumber(7), *p.ExitRequestedAt)
	assert.Nil(t, p.DelegatedTo)
	assert.Equal(t, primitives.Balance(400), p.Stake)
	target, _ := r.Participant(account(1))
	assert.Zero(t, target.ReceivedDelegations)
	requirePoolInvariant(t, r)

	// the evicted account exits after the cool-down like any other
	_, err = r.Exit(account(3), 16)
	require.ErrorIs(t, err, ErrCooldownNotElapsed)
	stake, err = r.Exit(account(3), 17)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(400), stake)
}

func TestRejoinCancelsExit(t *testing.T) {
	r := NewRegistry(testParams())
	_, _, err := r.Join(account(1), 100, 0)
	require.NoError(t, err)
	require.NoError(t, r.PrepareExit(account(1), 5))
	assert.Equal(t, 0, r.Pool().Len())

	stake, _, err := r.Join(account(1), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(200), stake)

	p, ok := r.Participant(account(1))
	require.True(t, ok)
	assert.Nil(t, p.ExitRequestedAt)
	assert.Equal(t, 1, r.Pool().Len())
	requirePoolInvariant(t, r)
}

func TestDelegate(t *testing.T) {
	r := NewRegistry(testParams())
	for i := byte(1); i <= 3; i++ {
		_, _, err := r.Join(account(i), 100*primitives.Balance(i), 0)
		require.NoError(t, err)
	}

	testCases := []struct {
		name    string
		from    primitives.AccountID
		to      primitives.AccountID
		amount  primitives.Balance
		wantErr error
	}{
		{"not a member", account(9), account(1), 10, ErrNotPoolMember},
		{"self", account(1), account(1), 10, ErrSelfDelegation},
		{"inactive delegate", account(1), account(9), 10, ErrDelegateNotActive},
		{"zero amount", account(1), account(2), 0, ErrInvalidDelegationAmount},
		{"above stake", account(1), account(2), 101, ErrInvalidDelegationAmount},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, r.Delegate(tc.from, tc.to, tc.amount), tc.wantErr)
		})
	}

	require.NoError(t, r.Delegate(account(1), account(2), 60))
	requirePoolInvariant(t, r)
	assert.Equal(t, []Delegation{{Delegator: account(1), Amount: 60}}, r.Delegators(account(2)))
	assert.Empty(t, r.Delegators(account(3)))

	i, ok := r.Pool().Index(account(1))
	require.True(t, ok)
	assert.Equal(t, primitives.Balance(40), r.Pool().Entry(i).Weight)
	i, ok = r.Pool().Index(account(2))
	require.True(t, ok)
	assert.Equal(t, primitives.Balance(260), r.Pool().Entry(i).Weight)

	require.ErrorIs(t, r.Delegate(account(1), account(3), 10), ErrAlreadyDelegating)
	require.ErrorIs(t, r.Delegate(account(3), account(1), 10), ErrDelegationChain)
	require.ErrorIs(t, r.Delegate(account(2), account(3), 10), ErrDelegationChain)

	// full delegation leaves no own entry
	require.NoError(t, r.Undelegate(account(1)))
	require.NoError(t, r.Delegate(account(1), account(2), 100))
	_, ok = r.Pool().Index(account(1))
	assert.False(t, ok)
	requirePoolInvariant(t, r)

	require.ErrorIs(t, r.Undelegate(account(3)), ErrNotDelegating)
}

func TestPrepareExitRevertsDelegations(t *testing.T) {
	r := NewRegistry(testParams())
	for i := byte(1); i <= 3; i++ {
		_, _, err := r.Join(account(i), 100, 0)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delegate(account(1), account(2), 50))
	require.NoError(t, r.Delegate(account(3), account(2), 30))

	require.NoError(t, r.PrepareExit(account(2), 7))
	requirePoolInvariant(t, r)

	for _, a := range []primitives.AccountID{account(1), account(3)} {
		p, _ := r.Participant(a)
		assert.Nil(t, p.DelegatedTo)
		assert.Zero(t, p.DelegatedAmount)
	}
	assert.Equal(t, primitives.Balance(200), r.Pool().Total())
	require.ErrorIs(t, r.PrepareExit(account(2), 8), ErrNotPoolMember)
}

func TestExit(t *testing.T) {
	r := NewRegistry(testParams())
	_, _, err := r.Join(account(1), 150, 0)
	require.NoError(t, err)

	_, err = r.Exit(account(9), 0)
	require.ErrorIs(t, err, ErrParticipantNotFound)
	_, err = r.Exit(account(1), 0)
	require.ErrorIs(t, err, ErrNotPreparedToExit)

	r.Engage(account(1))
	require.NoError(t, r.PrepareExit(account(1), 5))
	_, err = r.Exit(account(1), 100)
	require.ErrorIs(t, err, ErrStillDrawn)

	r.Release(account(1))
	_, err = r.Exit(account(1), 14)
	require.ErrorIs(t, err, ErrCooldownNotElapsed)

	stake, err := r.Exit(account(1), 15)
	require.NoError(t, err)
	assert.Equal(t, primitives.Balance(150), stake)
	_, ok := r.Participant(account(1))
	assert.False(t, ok)

	updated, removed := r.TakeDirty()
	assert.Empty(t, updated)
	assert.Equal(t, []primitives.AccountID{account(1)}, removed)
}

func TestSlash(t *testing.T) {
	r := NewRegistry(testParams())
	for i := byte(1); i <= 2; i++ {
		_, _, err := r.Join(account(i), 300, 0)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delegate(account(1), account(2), 150))
	r.Engage(account(1), account(2))

	// delegated slash reduces the delegation and the delegate's weight
	actual := r.Slash(account(1), 100, true, 3)
	assert.Equal(t, primitives.Balance(100), actual)
	p1, _ := r.Participant(account(1))
	p2, _ := r.Participant(account(2))
	assert.Equal(t, primitives.Balance(200), p1.Stake)
	assert.Equal(t, primitives.Balance(50), p1.DelegatedAmount)
	assert.Equal(t, primitives.Balance(50), p2.ReceivedDelegations)
	requirePoolInvariant(t, r)

	// own slash below the minimum removes the member from the pool
	actual = r.Slash(account(2), 250, false, 4)
	assert.Equal(t, primitives.Balance(250), actual)
	p2, _ = r.Participant(account(2))
	assert.False(t, p2.IsActive())
	p1, _ = r.Participant(account(1))
	assert.Nil(t, p1.DelegatedTo)
	requirePoolInvariant(t, r)

	// saturates at the remaining stake
	actual = r.Slash(account(2), 1_000, false, 5)
	assert.Equal(t, primitives.Balance(50), actual)

	// no stake and no duties left
	r.Release(account(2))
	_, ok := r.Participant(account(2))
	assert.False(t, ok)
}

func TestPoolFind(t *testing.T) {
	r := NewRegistry(testParams())
	for i, stake := range []primitives.Balance{100, 300, 200} {
		_, _, err := r.Join(account(byte(i+1)), stake, 0)
		require.NoError(t, err)
	}
	pool := r.Pool()
	require.Equal(t, primitives.Balance(600), pool.Total())

	testCases := []struct {
		point primitives.Balance
		want  primitives.AccountID
	}{
		{0, account(1)},
		{99, account(1)},
		{100, account(2)},
		{399, account(2)},
		{400, account(3)},
		{599, account(3)},
	}
	for _, tc := range testCases {
		i, ok := pool.Find(tc.point)
		require.True(t, ok)
		assert.Equal(t, tc.want, pool.Entry(i).Account, "point %d", tc.point)
	}
	_, ok := pool.Find(600)
	assert.False(t, ok)
}

func TestInflation(t *testing.T) {
	r := NewRegistry(testParams())
	_, _, err := r.Join(account(1), 1_000, 0)
	require.NoError(t, err)
	_, _, err = r.Join(account(2), 500, 0)
	require.NoError(t, err)
	require.NoError(t, r.PrepareExit(account(2), 1))

	payouts := r.Inflation(primitives.Perbill(10_000_000))
	assert.Equal(t, []Payout{{Account: account(1), Amount: 10}}, payouts)
}

func TestCloneIsolation(t *testing.T) {
	r := NewRegistry(testParams())
	_, _, err := r.Join(account(1), 100, 0)
	require.NoError(t, err)

	c := r.Clone()
	_, err = c.IncreaseStake(account(1), 50)
	require.NoError(t, err)
	_, _, err = c.Join(account(2), 100, 0)
	require.NoError(t, err)

	p, _ := r.Participant(account(1))
	assert.Equal(t, primitives.Balance(100), p.Stake)
	assert.Equal(t, 1, r.Pool().Len())
	assert.Equal(t, 2, c.Pool().Len())
}

func TestRestore(t *testing.T) {
	r := NewRegistry(testParams())
	for i := byte(1); i <= 3; i++ {
		_, _, err := r.Join(account(i), 100, 0)
		require.NoError(t, err)
	}
	require.NoError(t, r.Delegate(account(3), account(1), 40))
	require.NoError(t, r.PrepareExit(account(2), 9))

	restored := Restore(testParams(), r.Participants())
	assert.Equal(t, r.Pool().Entries(), restored.Pool().Entries())
	assert.Equal(t, r.Participants(), restored.Participants())
}

package accounts

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(types.SHA256([]byte(seed)))
}

func testAccount(lamports types.Lamports, data []byte, owner types.Pubkey) *types.Account {
	return types.NewAccountWithData(lamports, data, owner)
}

// backends opens one database per storage backend, each in its own temp dir.
func backends(t *testing.T) map[string]AccountsDB {
	t.Helper()
	out := make(map[string]AccountsDB)
	for _, name := range []string{BackendMemory, BackendBadger, BackendLevelDB} {
		db, err := Open(name, filepath.Join(t.TempDir(), name))
		require.NoError(t, err, name)
		t.Cleanup(func() { db.Close() })
		out[name] = db
	}
	return out
}

func TestAccountsDB_SetGetDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pubkey := testPubkey("account")
			owner := testPubkey("owner")

			got, err := db.GetAccount(pubkey)
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.False(t, db.HasAccount(pubkey))

			require.NoError(t, db.SetAccount(pubkey, testAccount(1_000, []byte("data"), owner)))
			got, err = db.GetAccount(pubkey)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, types.Lamports(1_000), got.Lamports)
			assert.Equal(t, []byte("data"), got.Data)
			assert.Equal(t, owner, got.Owner)
			assert.True(t, db.HasAccount(pubkey))
			assert.Equal(t, uint64(1), db.GetAccountsCount())

			require.NoError(t, db.SetAccount(pubkey, testAccount(5, nil, owner)))
			assert.Equal(t, uint64(1), db.GetAccountsCount())
			got, err = db.GetAccount(pubkey)
			require.NoError(t, err)
			assert.Equal(t, types.Lamports(5), got.Lamports)
			assert.Empty(t, got.Data)

			require.NoError(t, db.DeleteAccount(pubkey))
			require.NoError(t, db.DeleteAccount(pubkey))
			assert.False(t, db.HasAccount(pubkey))
			assert.Equal(t, uint64(0), db.GetAccountsCount())
		})
	}
}

func TestAccountsDB_ForEachOrdered(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, seed := range []string{"c", "a", "b", "d"} {
				require.NoError(t, db.SetAccount(testPubkey(seed), testAccount(types.Lamports(i+1), nil, types.SystemProgramID)))
			}

			var visited []types.Pubkey
			require.NoError(t, db.ForEach(func(pk types.Pubkey, acc *types.Account) error {
				require.NotNil(t, acc)
				visited = append(visited, pk)
				return nil
			}))
			require.Len(t, visited, 4)
			for i := 1; i < len(visited); i++ {
				assert.Less(t, string(visited[i-1][:]), string(visited[i][:]))
			}

			stop := errors.New("stop")
			calls := 0
			err := db.ForEach(func(types.Pubkey, *types.Account) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestPersistentBackendsReopen(t *testing.T) {
	for _, backend := range []string{BackendBadger, BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db")
			db, err := Open(backend, path)
			require.NoError(t, err)
			require.NoError(t, db.SetAccount(testPubkey("x"), testAccount(7, []byte{1}, types.TokenProgramID)))
			require.NoError(t, db.SetAccount(testPubkey("y"), testAccount(8, nil, types.SystemProgramID)))
			require.NoError(t, db.Close())

			db, err = Open(backend, path)
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(t, uint64(2), db.GetAccountsCount())
			got, err := db.GetAccount(testPubkey("x"))
			require.NoError(t, err)
			assert.Equal(t, types.TokenProgramID, got.Owner)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb", t.TempDir())
	assert.Error(t, err)
}

func TestMemoryDB_DataIsolation(t *testing.T) {
	db := NewMemoryDB()
	pubkey := testPubkey("iso")
	acc := testAccount(1, []byte{1, 2, 3}, types.SystemProgramID)
	require.NoError(t, db.SetAccount(pubkey, acc))

	acc.Data[0] = 99
	got, err := db.GetAccount(pubkey)
	require.NoError(t, err)
	assert.Equal(t, byte(1), got.Data[0])

	got.Data[1] = 99
	again, err := db.GetAccount(pubkey)
	require.NoError(t, err)
	assert.Equal(t, byte(2), again.Data[1])
}

func TestMemoryDB_Concurrent(t *testing.T) {
	db := NewMemoryDB()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pk := testPubkey(string(rune('a' + i)))
			_ = db.SetAccount(pk, testAccount(types.Lamports(i), nil, types.SystemProgramID))
			_, _ = db.GetAccount(pk)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(32), db.GetAccountsCount())
}

func TestSerializeAccount(t *testing.T) {
	acc := &types.Account{Lamports: 42, Data: []byte("payload"), Owner: testPubkey("o"), Executable: true}
	raw, err := SerializeAccount(acc)
	require.NoError(t, err)
	assert.Len(t, raw, storedHeaderSize+len(acc.Data))

	back, err := DeserializeAccount(raw)
	require.NoError(t, err)
	assert.True(t, acc.Equal(back))

	_, err = DeserializeAccount(raw[:10])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
	_, err = DeserializeAccount(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
	_, err = SerializeAccount(nil)
	assert.Error(t, err)
}

func TestComputeAccountsDeltaHash(t *testing.T) {
	assert.Equal(t, types.ZeroHash, ComputeAccountsDeltaHash(nil))

	a := types.AccountRef{Pubkey: testPubkey("a"), Account: testAccount(1, nil, types.SystemProgramID)}
	b := types.AccountRef{Pubkey: testPubkey("b"), Account: testAccount(2, nil, types.SystemProgramID)}

	assert.Equal(t, a.Account.Hash(a.Pubkey), ComputeAccountsDeltaHash([]types.AccountRef{a}))
	assert.Equal(t,
		ComputeAccountsDeltaHash([]types.AccountRef{a, b}),
		ComputeAccountsDeltaHash([]types.AccountRef{b, a}),
		"order of input must not matter")

	changed := types.AccountRef{Pubkey: b.Pubkey, Account: testAccount(3, nil, types.SystemProgramID)}
	assert.NotEqual(t,
		ComputeAccountsDeltaHash([]types.AccountRef{a, b}),
		ComputeAccountsDeltaHash([]types.AccountRef{a, changed}))
}

func TestComputeAccountsDeltaHash_WideTree(t *testing.T) {
	refs := make([]types.AccountRef, 17)
	for i := range refs {
		refs[i] = types.AccountRef{Pubkey: testPubkey(string(rune('A' + i))), Account: testAccount(types.Lamports(i), nil, types.SystemProgramID)}
	}
	h17 := ComputeAccountsDeltaHash(refs)
	h16 := ComputeAccountsDeltaHash(refs[:16])
	assert.NotEqual(t, types.ZeroHash, h17)
	assert.NotEqual(t, h16, h17)
}

func TestComputeStateHash(t *testing.T) {
	db := NewMemoryDB()
	empty, err := ComputeStateHash(db)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroHash, empty)

	require.NoError(t, db.SetAccount(testPubkey("a"), testAccount(1, nil, types.SystemProgramID)))
	h1, err := ComputeStateHash(db)
	require.NoError(t, err)
	require.NoError(t, db.SetAccount(testPubkey("a"), testAccount(2, nil, types.SystemProgramID)))
	h2, err := ComputeStateHash(db)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
